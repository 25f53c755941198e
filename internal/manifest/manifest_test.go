package manifest

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestParsePreservesUnknownFields(t *testing.T) {
	m, err := Parse([]byte(`{
		"name": "widget",
		"version": "1.0.0",
		"dependencies": {"left-pad": "^1.0.0"},
		"somethingCustom": {"nested": true}
	}`))
	assert.NilError(t, err)
	assert.Equal(t, m.Name, "widget")
	assert.Equal(t, m.Dependencies["left-pad"], "^1.0.0")

	out, err := Marshal(m)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(string(out), `"somethingCustom"`))
}

func TestParseWorkspacesThreeShapes(t *testing.T) {
	bare, err := Parse([]byte(`{"name":"a","version":"1.0.0","workspaces":"packages/*"}`))
	assert.NilError(t, err)
	assert.DeepEqual(t, bare.Workspaces, Workspaces{"packages/*"})

	arr, err := Parse([]byte(`{"name":"a","version":"1.0.0","workspaces":["packages/*","apps/*"]}`))
	assert.NilError(t, err)
	assert.DeepEqual(t, arr.Workspaces, Workspaces{"packages/*", "apps/*"})

	obj, err := Parse([]byte(`{"name":"a","version":"1.0.0","workspaces":{"packages":["packages/*"]}}`))
	assert.NilError(t, err)
	assert.DeepEqual(t, obj.Workspaces, Workspaces{"packages/*"})
}

func TestParseBinStringImpliesPackageName(t *testing.T) {
	m, err := Parse([]byte(`{"name":"widget","version":"1.0.0","bin":"./cli.js"}`))
	assert.NilError(t, err)
	assert.Equal(t, len(m.Bin), 1)
	assert.Equal(t, m.Bin["widget"], "./cli.js")
}

func TestParseBinMap(t *testing.T) {
	m, err := Parse([]byte(`{"name":"widget","version":"1.0.0","bin":{"w":"./cli.js","w2":"./cli2.js"}}`))
	assert.NilError(t, err)
	assert.Equal(t, m.Bin["w"], "./cli.js")
	assert.Equal(t, m.Bin["w2"], "./cli2.js")
}

func TestAllDependenciesMarksDev(t *testing.T) {
	m, err := Parse([]byte(`{
		"name": "a", "version": "1.0.0",
		"dependencies": {"lodash": "4.0.0"},
		"devDependencies": {"jest": "29.0.0"}
	}`))
	assert.NilError(t, err)

	deps, isDev := m.AllDependencies()
	assert.Equal(t, deps["lodash"], "4.0.0")
	assert.Equal(t, deps["jest"], "29.0.0")
	assert.Assert(t, !isDev["lodash"])
	assert.Assert(t, isDev["jest"])
}
