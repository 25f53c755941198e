package semver

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestParse(t *testing.T) {
	v, err := Parse("1.2.3-alpha.1+build5")
	assert.NilError(t, err)
	assert.DeepEqual(t, v, Version{Major: 1, Minor: 2, Patch: 3, Prerelease: "alpha.1", Build: "build5"})
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "1.2", "a.b.c", "1.2.3.4"} {
		_, err := Parse(s)
		assert.ErrorContains(t, err, "invalid version")
	}
}

func TestCompareOrdering(t *testing.T) {
	cases := []struct{ a, b string }{
		{"1.0.0", "2.0.0"},
		{"2.0.0", "2.1.0"},
		{"2.1.0", "2.1.1"},
		{"1.0.0-alpha", "1.0.0"},
		{"1.0.0-alpha", "1.0.0-alpha.1"},
		{"1.0.0-alpha.1", "1.0.0-alpha.beta"},
		{"1.0.0-alpha.beta", "1.0.0-beta"},
		{"1.0.0-beta", "1.0.0-beta.2"},
		{"1.0.0-beta.2", "1.0.0-beta.11"},
		{"1.0.0-beta.11", "1.0.0-rc.1"},
		{"1.0.0-rc.1", "1.0.0"},
	}
	for _, c := range cases {
		a, err := Parse(c.a)
		assert.NilError(t, err)
		b, err := Parse(c.b)
		assert.NilError(t, err)
		assert.Equal(t, Compare(a, b), -1, "%s should be < %s", c.a, c.b)
		assert.Equal(t, Compare(b, a), 1, "%s should be > %s", c.b, c.a)
		assert.Equal(t, Compare(a, a), 0)
	}
}

func TestCompareBuildIgnored(t *testing.T) {
	a, _ := Parse("1.0.0+build1")
	b, _ := Parse("1.0.0+build2")
	assert.Equal(t, Compare(a, b), 0)
}
