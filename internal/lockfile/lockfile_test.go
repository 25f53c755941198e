package lockfile

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestEncodeIsSortedByKey(t *testing.T) {
	l := New()
	assert.NilError(t, l.Put("zebra@1.0.0", &LockFilePackage{Version: "1.0.0"}))
	assert.NilError(t, l.Put("apple@2.0.0", &LockFilePackage{Version: "2.0.0"}))

	data, err := l.Encode()
	assert.NilError(t, err)

	appleIdx := indexOf(t, data, `"apple@2.0.0"`)
	zebraIdx := indexOf(t, data, `"zebra@1.0.0"`)
	assert.Assert(t, appleIdx < zebraIdx)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := New()
	assert.NilError(t, l.Put("a@1.0.0", &LockFilePackage{
		Version:      "1.0.0",
		Resolved:     "https://registry.npmjs.org/a/-/a-1.0.0.tgz",
		Integrity:    "sha512-abc",
		Dependencies: map[string]string{"b": "^2.0.0"},
		Dev:          true,
	}))

	data, err := l.Encode()
	assert.NilError(t, err)

	decoded, err := Decode(data)
	assert.NilError(t, err)
	assert.Equal(t, len(decoded.Packages), 1)
	assert.Equal(t, decoded.Packages["a@1.0.0"].Version, "1.0.0")
	assert.Assert(t, decoded.Packages["a@1.0.0"].Dev)
	assert.Equal(t, decoded.Packages["a@1.0.0"].Dependencies["b"], "^2.0.0")
}

func TestPutDetectsVersionMismatch(t *testing.T) {
	l := New()
	assert.NilError(t, l.Put("a@1.0.0", &LockFilePackage{Version: "1.0.0", Resolved: "r1"}))
	err := l.Put("a@1.0.0", &LockFilePackage{Version: "1.0.1", Resolved: "r1"})
	assert.Assert(t, err != nil)
	_, ok := err.(*MismatchError)
	assert.Assert(t, ok)
}

func TestPutDetectsIntegrityMismatch(t *testing.T) {
	l := New()
	assert.NilError(t, l.Put("a@1.0.0", &LockFilePackage{Version: "1.0.0", Integrity: "sha512-one"}))
	err := l.Put("a@1.0.0", &LockFilePackage{Version: "1.0.0", Integrity: "sha512-two"})
	assert.Assert(t, err != nil)
	_, ok := err.(*MismatchError)
	assert.Assert(t, ok)
}

func TestPutToleratesRepeatedIdenticalEntry(t *testing.T) {
	l := New()
	pkg := &LockFilePackage{Version: "1.0.0", Resolved: "r1", Integrity: "sha512-one"}
	assert.NilError(t, l.Put("a@1.0.0", pkg))
	assert.NilError(t, l.Put("a@1.0.0", &LockFilePackage{Version: "1.0.0", Resolved: "r1", Integrity: "sha512-one"}))
}

func indexOf(t *testing.T, haystack []byte, needle string) int {
	t.Helper()
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == needle {
			return i
		}
	}
	t.Fatalf("needle %q not found", needle)
	return -1
}
