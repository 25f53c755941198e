package lockfile

import (
	"testing"

	"gotest.tools/v3/assert"
)

const berryFixture = `__metadata:
  version: 6
  cacheKey: 8

"lodash@npm:^4.17.21":
  version: 4.17.21
  resolution: "lodash@npm:4.17.21"
  checksum: abc123
  languageName: node
  linkType: hard

"left-pad@npm:^1.3.0":
  version: 1.3.0
  resolution: "left-pad@npm:1.3.0"
  checksum: def456
  dependencies:
    lodash: "npm:^4.17.21"
  languageName: node
  linkType: hard
`

func TestIsYarnBerryDetectsMetadataKey(t *testing.T) {
	assert.Assert(t, IsYarnBerry([]byte(berryFixture)))
	assert.Assert(t, !IsYarnBerry([]byte(`"a@^1.0.0":\n  version "1.0.0"\n`)))
}

func TestYarnBerryImporterConvertsChecksumToIntegrity(t *testing.T) {
	out, err := YarnBerryImporter{}.Import([]byte(berryFixture))
	assert.NilError(t, err)

	assert.Equal(t, len(out.Packages), 2)
	lodash := out.Packages["lodash@4.17.21"]
	assert.Assert(t, lodash != nil)
	assert.Equal(t, lodash.Integrity, "sha512-abc123")

	leftPad := out.Packages["left-pad@1.3.0"]
	assert.Assert(t, leftPad != nil)
	assert.Equal(t, leftPad.Dependencies["lodash"], "npm:^4.17.21")
}
