package semver

import (
	"testing"

	"gotest.tools/v3/assert"
)

func mustParse(t *testing.T, s string) Version {
	t.Helper()
	v, err := Parse(s)
	assert.NilError(t, err)
	return v
}

func TestCaretRangeExcludesNextMajor(t *testing.T) {
	r, err := ParseRange("^1.2.3")
	assert.NilError(t, err)

	assert.Assert(t, r.Satisfies(mustParse(t, "1.2.3")))
	assert.Assert(t, r.Satisfies(mustParse(t, "1.9.9")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "1.2.2")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "2.0.0")))
}

func TestCaretRangeZeroMajor(t *testing.T) {
	r, err := ParseRange("^0.2.3")
	assert.NilError(t, err)
	assert.Assert(t, r.Satisfies(mustParse(t, "0.2.9")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "0.3.0")))
}

func TestCaretRangeZeroMajorMinor(t *testing.T) {
	r, err := ParseRange("^0.0.3")
	assert.NilError(t, err)
	assert.Assert(t, r.Satisfies(mustParse(t, "0.0.3")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "0.0.4")))
}

func TestTildeRange(t *testing.T) {
	r, err := ParseRange("~1.2.3")
	assert.NilError(t, err)
	assert.Assert(t, r.Satisfies(mustParse(t, "1.2.9")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "1.3.0")))
}

func TestWildcardRange(t *testing.T) {
	for _, s := range []string{"*", "x", "", "latest"} {
		r, err := ParseRange(s)
		assert.NilError(t, err)
		assert.Assert(t, r.Satisfies(mustParse(t, "9.9.9")))
	}
}

func TestHyphenRange(t *testing.T) {
	r, err := ParseRange("1.2.3 - 2.3.4")
	assert.NilError(t, err)
	assert.Assert(t, r.Satisfies(mustParse(t, "1.2.3")))
	assert.Assert(t, r.Satisfies(mustParse(t, "2.3.4")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "2.3.5")))
}

func TestComparatorRange(t *testing.T) {
	r, err := ParseRange(">=1.0.0 <2.0.0")
	assert.NilError(t, err)
	assert.Assert(t, r.Satisfies(mustParse(t, "1.5.0")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "2.0.0")))
}

func TestMaxPicksMaximalNotLast(t *testing.T) {
	r, err := ParseRange("^1.0.0")
	assert.NilError(t, err)
	versions := []Version{
		mustParse(t, "1.0.0"),
		mustParse(t, "1.0.5"),
		mustParse(t, "1.1.0"),
		mustParse(t, "2.0.0"),
	}
	best, ok := r.Max(versions)
	assert.Assert(t, ok)
	assert.Equal(t, best.String(), "1.1.0")
}

func TestPrereleaseOnlyMatchesOwnLine(t *testing.T) {
	r, err := ParseRange("^1.2.3-alpha.0")
	assert.NilError(t, err)
	assert.Assert(t, r.Satisfies(mustParse(t, "1.2.3-alpha.5")))
	assert.Assert(t, !r.Satisfies(mustParse(t, "1.3.0-beta")))
}
