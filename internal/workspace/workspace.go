// Package workspace discovers the workspaces declared in a project's root
// manifest and orders them topologically, grounded on the teacher's
// internal/globby (pattern matching) and internal/graph +
// internal/util/graph.go (dag.AcyclicGraph cycle detection) packages.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	iofs "io/fs"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/pyr-sh/dag"
	"github.com/spf13/afero"

	"github.com/hoardpm/hoard/internal/manifest"
)

// Info is one discovered workspace.
type Info struct {
	Name     string
	Dir      string // relative to the project root, slash-separated
	Manifest *manifest.Manifest
}

// Catalog is the full set of discovered workspaces, keyed by name.
type Catalog struct {
	Root        *manifest.Manifest
	Workspaces  map[string]*Info
	CycleBroken string // name of a node on a detected cycle, if any
}

var aferoOS = afero.NewOsFs()
var aferoIOFS = afero.NewIOFS(aferoOS)

// Discover reads the root package.json at rootDir, expands its
// `workspaces` patterns, and loads each matched package.json.
func Discover(rootDir string, logger hclog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	rootManifestPath := filepath.Join(rootDir, "package.json")
	rootData, err := os.ReadFile(rootManifestPath)
	if err != nil {
		return nil, fmt.Errorf("workspace: reading root manifest: %w", err)
	}
	rootManifest, err := manifest.Parse(rootData)
	if err != nil {
		return nil, fmt.Errorf("workspace: parsing root manifest: %w", err)
	}

	catalog := &Catalog{Root: rootManifest, Workspaces: map[string]*Info{}}

	patterns := []string(rootManifest.Workspaces)
	for _, dir := range resolvePatterns(rootDir, patterns) {
		pkgPath := filepath.Join(rootDir, dir, "package.json")
		data, err := os.ReadFile(pkgPath)
		if err != nil {
			logger.Warn("workspace pattern matched directory without package.json", "dir", dir)
			continue
		}
		m, err := manifest.Parse(data)
		if err != nil || m.Name == "" {
			logger.Warn("workspace package.json missing name or unparsable, skipping", "dir", dir)
			continue
		}
		catalog.Workspaces[m.Name] = &Info{Name: m.Name, Dir: filepath.ToSlash(dir), Manifest: m}
	}

	return catalog, nil
}

// resolvePatterns expands `workspaces` glob patterns into a sorted,
// deduplicated list of directories relative to rootDir. Pattern
// semantics: a trailing `/**` matches all sub-directories recursively, a
// trailing `/*` matches immediate sub-directories, anything else is an
// exact relative path.
func resolvePatterns(rootDir string, patterns []string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(dir string) {
		dir = filepath.ToSlash(filepath.Clean(dir))
		if dir == "." || seen[dir] {
			return
		}
		seen[dir] = true
		out = append(out, dir)
	}

	for _, pattern := range patterns {
		switch {
		case strings.HasSuffix(pattern, "/**"):
			base := strings.TrimSuffix(pattern, "/**")
			for _, dir := range globDirs(rootDir, base, true) {
				add(dir)
			}
		case strings.HasSuffix(pattern, "/*"):
			base := strings.TrimSuffix(pattern, "/*")
			for _, dir := range globDirs(rootDir, base, false) {
				add(dir)
			}
		default:
			add(pattern)
		}
	}

	sort.Strings(out)
	return out
}

// globDirs lists directories under rootDir/base. When recursive is true
// every descendant directory is included; otherwise only immediate
// children.
func globDirs(rootDir, base string, recursive bool) []string {
	// io/fs paths are relative and slash-separated, so the walk runs over a
	// filesystem rooted at rootDir and yields paths relative to it.
	fsys := afero.NewIOFS(afero.NewBasePathFs(aferoOS, rootDir))
	var dirs []string

	pattern := filepath.ToSlash(filepath.Join(base, "*"))
	if recursive {
		pattern = filepath.ToSlash(filepath.Join(base, "**"))
	}

	_ = doublestar.GlobWalk(fsys, pattern, func(path string, d iofs.DirEntry) error {
		if !d.IsDir() {
			return nil
		}
		dirs = append(dirs, filepath.FromSlash(path))
		return nil
	})
	return dirs
}

// TopologicalOrder returns workspace names such that every workspace a
// node depends on (via dependencies/devDependencies referencing another
// workspace by name) appears before it. Cycles are detected; if found,
// a stable order is still produced and CycleBroken names one node on a
// cycle, matching spec's requirement to surface a cycle warning without
// refusing to proceed.
func (c *Catalog) TopologicalOrder() []string {
	graph := &dag.AcyclicGraph{}
	names := make([]string, 0, len(c.Workspaces))
	for name := range c.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		graph.Add(name)
	}

	for _, name := range names {
		info := c.Workspaces[name]
		deps, _ := info.Manifest.AllDependencies()
		for dep := range deps {
			if _, ok := c.Workspaces[dep]; ok {
				// dependent -> dependency edge: dependency must come first.
				graph.Connect(dag.BasicEdge(name, dep))
			}
		}
	}

	if cycles := graph.Cycles(); len(cycles) > 0 {
		c.CycleBroken = fmt.Sprint(cycles[0][0])
	}

	return kahnOrder(names, graph)
}

// kahnOrder performs a stable Kahn's-algorithm topological sort:
// dependencies (edge targets) are emitted before their dependents (edge
// sources). Ties break by name for determinism. If a cycle remains after
// every resolvable node is emitted, the leftover nodes are appended in
// name order so every workspace is still represented exactly once.
func kahnOrder(names []string, graph *dag.AcyclicGraph) []string {
	dependsOn := map[string]map[string]bool{}
	for _, n := range names {
		dependsOn[n] = map[string]bool{}
	}
	for _, edge := range graph.Edges() {
		src := dag.VertexName(edge.Source())
		dst := dag.VertexName(edge.Target())
		dependsOn[src][dst] = true
	}

	var order []string
	emitted := map[string]bool{}

	for len(order) < len(names) {
		progressed := false
		for _, n := range names {
			if emitted[n] {
				continue
			}
			ready := true
			for dep := range dependsOn[n] {
				if !emitted[dep] && dep != n {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, n)
				emitted[n] = true
				progressed = true
			}
		}
		if !progressed {
			// Cycle: emit remaining nodes in stable name order so the
			// result is still total and deterministic.
			for _, n := range names {
				if !emitted[n] {
					order = append(order, n)
					emitted[n] = true
				}
			}
		}
	}
	return order
}
