package integrity

import (
	"bytes"
	"testing"

	"gotest.tools/v3/assert"
)

func TestComputeVerifyRoundTrip(t *testing.T) {
	for _, algo := range []Algo{SHA1, SHA256, SHA384, SHA512} {
		data := []byte("package tarball contents")
		spec, err := Compute(bytes.NewReader(data), algo)
		assert.NilError(t, err)
		assert.Assert(t, Verify(bytes.NewReader(data), spec))
	}
}

func TestVerifyRejectsMismatch(t *testing.T) {
	spec, err := Compute(bytes.NewReader([]byte("a")), SHA256)
	assert.NilError(t, err)
	assert.Assert(t, !Verify(bytes.NewReader([]byte("b")), spec))
}

func TestVerifyMalformedNeverThrows(t *testing.T) {
	for _, spec := range []string{"", "garbage", "sha256-", "md5-deadbeef", "-abc"} {
		assert.Assert(t, !Verify(bytes.NewReader([]byte("x")), spec))
	}
}

func TestStreamPositionRestored(t *testing.T) {
	data := bytes.NewReader([]byte("0123456789"))
	_, _ = data.Seek(3, 0)
	_, err := Compute(data, SHA256)
	assert.NilError(t, err)
	pos, _ := data.Seek(0, 1)
	assert.Equal(t, pos, int64(3))
}
