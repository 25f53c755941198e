package lockfile

import (
	"testing"

	"gotest.tools/v3/assert"
)

const npmFixture = `{
  "name": "root",
  "version": "1.0.0",
  "lockfileVersion": 3,
  "requires": true,
  "packages": {
    "": { "name": "root", "version": "1.0.0" },
    "node_modules/lodash": {
      "version": "4.17.21",
      "resolved": "https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz",
      "integrity": "sha512-lodash"
    },
    "node_modules/@scope/util": {
      "version": "2.0.0",
      "resolved": "https://registry.npmjs.org/@scope/util/-/util-2.0.0.tgz",
      "integrity": "sha512-util",
      "dev": true,
      "dependencies": { "lodash": "^4.17.21" }
    },
    "node_modules/@scope/util/node_modules/lodash": {
      "version": "3.0.0",
      "resolved": "https://registry.npmjs.org/lodash/-/lodash-3.0.0.tgz",
      "integrity": "sha512-lodash3"
    }
  }
}`

func TestNpmImporterResolvesNestedAndScopedNames(t *testing.T) {
	out, err := NpmImporter{}.Import([]byte(npmFixture))
	assert.NilError(t, err)

	assert.Equal(t, len(out.Packages), 3)
	assert.Assert(t, out.Packages["lodash@4.17.21"] != nil)
	assert.Assert(t, out.Packages["@scope/util@2.0.0"] != nil)
	assert.Assert(t, out.Packages["lodash@3.0.0"] != nil)
	assert.Assert(t, out.Packages["@scope/util@2.0.0"].Dev)
	assert.Equal(t, out.Packages["@scope/util@2.0.0"].Dependencies["lodash"], "^4.17.21")
}

func TestNpmImporterRejectsAncientLockfile(t *testing.T) {
	_, err := NpmImporter{}.Import([]byte(`{"lockfileVersion":1,"dependencies":{"a":{"version":"1.0.0"}}}`))
	assert.Assert(t, err != nil)
}
