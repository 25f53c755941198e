package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func writeJSON(t *testing.T, path, content string) {
	t.Helper()
	assert.NilError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	assert.NilError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverExpandsStarAndGlobstarPatterns(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "package.json"), `{"name":"root","workspaces":["packages/*","tools/**"]}`)
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), `{"name":"a","version":"1.0.0"}`)
	writeJSON(t, filepath.Join(root, "packages/b/package.json"), `{"name":"b","version":"1.0.0","dependencies":{"a":"workspace:*"}}`)
	writeJSON(t, filepath.Join(root, "tools/nested/deep/package.json"), `{"name":"deep-tool","version":"1.0.0"}`)

	catalog, err := Discover(root, nil)
	assert.NilError(t, err)

	assert.Assert(t, catalog.Workspaces["a"] != nil)
	assert.Assert(t, catalog.Workspaces["b"] != nil)
	assert.Assert(t, catalog.Workspaces["deep-tool"] != nil)
}

func TestDiscoverSkipsDirectoryWithoutName(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "package.json"), `{"name":"root","workspaces":["packages/*"]}`)
	writeJSON(t, filepath.Join(root, "packages/broken/package.json"), `{"version":"1.0.0"}`)

	catalog, err := Discover(root, nil)
	assert.NilError(t, err)
	assert.Equal(t, len(catalog.Workspaces), 0)
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "package.json"), `{"name":"root","workspaces":["packages/*"]}`)
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), `{"name":"a","version":"1.0.0"}`)
	writeJSON(t, filepath.Join(root, "packages/b/package.json"), `{"name":"b","version":"1.0.0","dependencies":{"a":"workspace:*"}}`)
	writeJSON(t, filepath.Join(root, "packages/c/package.json"), `{"name":"c","version":"1.0.0","dependencies":{"b":"workspace:*"}}`)

	catalog, err := Discover(root, nil)
	assert.NilError(t, err)

	order := catalog.TopologicalOrder()
	assert.Equal(t, len(order), 3)
	assert.Assert(t, indexOf(order, "a") < indexOf(order, "b"))
	assert.Assert(t, indexOf(order, "b") < indexOf(order, "c"))
}

func TestTopologicalOrderSurvivesCycle(t *testing.T) {
	root := t.TempDir()
	writeJSON(t, filepath.Join(root, "package.json"), `{"name":"root","workspaces":["packages/*"]}`)
	writeJSON(t, filepath.Join(root, "packages/a/package.json"), `{"name":"a","version":"1.0.0","dependencies":{"b":"workspace:*"}}`)
	writeJSON(t, filepath.Join(root, "packages/b/package.json"), `{"name":"b","version":"1.0.0","dependencies":{"a":"workspace:*"}}`)

	catalog, err := Discover(root, nil)
	assert.NilError(t, err)

	order := catalog.TopologicalOrder()
	assert.Equal(t, len(order), 2)
	assert.Assert(t, catalog.CycleBroken != "")
}

func indexOf(list []string, target string) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}
