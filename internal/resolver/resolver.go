// Package resolver implements the concurrent dependency resolution
// algorithm: seed direct dependencies, classify each range into a
// source kind, resolve to a concrete version, and fan out over
// transitive dependencies with insert-if-absent deduplication, grounded
// on the teacher's lockfile.transitiveClosureHelper recursive-errgroup
// pattern in cli/internal/lockfile/lockfile.go.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/hoardpm/hoard/internal/manifest"
	"github.com/hoardpm/hoard/internal/overrides"
	"github.com/hoardpm/hoard/internal/registry"
	"github.com/hoardpm/hoard/internal/semver"
	"github.com/hoardpm/hoard/internal/workspace"
)

// Source classifies where a resolved package's contents come from.
type Source int

const (
	SourceRegistry Source = iota
	SourceGit
	SourceFile
	SourceLink
	SourceWorkspace
)

func (s Source) String() string {
	switch s {
	case SourceRegistry:
		return "registry"
	case SourceGit:
		return "git"
	case SourceFile:
		return "file"
	case SourceLink:
		return "link"
	case SourceWorkspace:
		return "workspace"
	default:
		return "unknown"
	}
}

// ResolvedPackage is one admitted node of the dependency graph.
type ResolvedPackage struct {
	Name      string
	Version   string
	Source    Source
	Resolved  string // tarball URL, file path, git URL, or workspace dir
	Integrity string
	Dev       bool
	Optional  bool

	Dependencies         map[string]string
	OptionalDependencies map[string]string
	PeerDependencies     map[string]string
}

// Key is the resolver's dedup identity for a package.
func (p *ResolvedPackage) Key() string { return p.Name + "@" + p.Version }

// DependencyGraph is the resolver's output: every admitted package,
// keyed by name@version. Construction is order-insensitive — it's a
// set, not a tree — matching spec's ordering guarantee that only the
// lockfile writer imposes a total order.
type DependencyGraph struct {
	Packages map[string]*ResolvedPackage
}

// Registry is the subset of *registry.Client the resolver needs.
type Registry interface {
	Versions(ctx context.Context, name string) ([]string, error)
	Manifest(ctx context.Context, name, version string) (*registry.RawManifest, error)
}

// Resolver resolves a root manifest into a DependencyGraph.
type Resolver struct {
	Registry  Registry
	Overrides *overrides.Resolver
	Workspace *workspace.Catalog
	Logger    hclog.Logger

	mu       sync.Mutex
	admitted map[string]*ResolvedPackage
}

// New constructs a Resolver. overridesResolver and ws may be nil.
func New(reg Registry, overridesResolver *overrides.Resolver, ws *workspace.Catalog, logger hclog.Logger) *Resolver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Resolver{
		Registry:  reg,
		Overrides: overridesResolver,
		Workspace: ws,
		Logger:    logger.Named("resolver"),
		admitted:  map[string]*ResolvedPackage{},
	}
}

// task is one (name, range, dev, parentChain) unit of work.
type task struct {
	name        string
	rng         string
	dev         bool
	optional    bool
	parentChain string
}

// Resolve runs the algorithm described in spec §4.J over root's direct,
// dev and optional dependencies.
func (r *Resolver) Resolve(ctx context.Context, root *manifest.Manifest) (*DependencyGraph, error) {
	deps, isDev := root.AllDependencies()

	eg, ctx := errgroup.WithContext(ctx)
	for name, rng := range deps {
		t := task{name: name, rng: rng, dev: isDev[name], parentChain: name}
		r.spawn(eg, ctx, t)
	}
	for name, rng := range root.OptionalDependencies {
		if _, already := deps[name]; already {
			continue
		}
		r.spawn(eg, ctx, task{name: name, rng: rng, optional: true, parentChain: name})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := &DependencyGraph{Packages: make(map[string]*ResolvedPackage, len(r.admitted))}
	for k, v := range r.admitted {
		out.Packages[k] = v
	}
	return out, nil
}

func (r *Resolver) spawn(eg *errgroup.Group, ctx context.Context, t task) {
	eg.Go(func() error {
		return r.resolveOne(ctx, eg, t)
	})
}

func (r *Resolver) resolveOne(ctx context.Context, eg *errgroup.Group, t task) error {
	rng := t.rng
	if r.Overrides != nil {
		// t.parentChain ends with t.name itself; Replacement takes only the
		// ancestors, which are empty for a root dependency.
		parent := ""
		if i := strings.LastIndex(t.parentChain, ">"); i >= 0 {
			parent = t.parentChain[:i]
		}
		if replacement, ok := r.Overrides.Replacement(parent, t.name); ok {
			rng = replacement
		}
	}

	source := classify(t.name, rng, r.Workspace)

	pkg, err := r.materialise(ctx, t.name, rng, source)
	if err != nil {
		if t.optional && isOptionalMiss(err) {
			r.Logger.Warn("omitting optional dependency", "name", t.name, "range", rng, "err", err)
			return nil
		}
		return err
	}
	pkg.Dev = t.dev
	pkg.Optional = t.optional

	admittedNow, existing := r.admitIfAbsent(pkg)
	if !admittedNow {
		_ = existing
		return nil
	}

	childEg, childCtx := errgroup.WithContext(ctx)
	for name, childRange := range pkg.Dependencies {
		r.spawn(childEg, childCtx, task{name: name, rng: childRange, dev: false, parentChain: t.parentChain + ">" + name})
	}
	for name, childRange := range pkg.OptionalDependencies {
		if _, already := pkg.Dependencies[name]; already {
			continue
		}
		r.spawn(childEg, childCtx, task{name: name, rng: childRange, optional: true, parentChain: t.parentChain + ">" + name})
	}
	return childEg.Wait()
}

// admitIfAbsent inserts pkg keyed by pkg.Key() iff absent, returning
// whether this call performed the insertion (the single-expansion
// guarantee required by spec §4.J.d).
func (r *Resolver) admitIfAbsent(pkg *ResolvedPackage) (admitted bool, existing *ResolvedPackage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prior, ok := r.admitted[pkg.Key()]; ok {
		return false, prior
	}
	r.admitted[pkg.Key()] = pkg
	return true, nil
}

// classify implements spec §4.J.3.b.
func classify(name, rng string, ws *workspace.Catalog) Source {
	switch {
	case strings.HasPrefix(rng, "git+"), strings.HasPrefix(rng, "git://"),
		strings.HasPrefix(rng, "ssh://"), gitShorthand.MatchString(rng),
		strings.HasPrefix(rng, "github:"):
		return SourceGit
	case strings.HasPrefix(rng, "file:"), looksLikePath(rng):
		return SourceFile
	case strings.HasPrefix(rng, "link:"):
		return SourceLink
	case strings.HasPrefix(rng, "workspace:"):
		return SourceWorkspace
	}
	if ws != nil {
		if _, ok := ws.Workspaces[name]; ok {
			return SourceWorkspace
		}
	}
	return SourceRegistry
}

var gitShorthand = regexp.MustCompile(`^[\w.-]+/[\w.-]+#[\w.-]+$`)

func looksLikePath(rng string) bool {
	if strings.HasPrefix(rng, "./") || strings.HasPrefix(rng, "../") || strings.HasPrefix(rng, "/") {
		return true
	}
	// Windows drive path, e.g. "C:\foo" or "C:/foo".
	return len(rng) >= 3 && rng[1] == ':' && (rng[2] == '\\' || rng[2] == '/')
}

func (r *Resolver) materialise(ctx context.Context, name, rng string, source Source) (*ResolvedPackage, error) {
	switch source {
	case SourceWorkspace:
		return r.materialiseWorkspace(name, rng)
	case SourceGit, SourceFile, SourceLink:
		return r.materialisePseudo(name, rng, source)
	default:
		return r.materialiseRegistry(ctx, name, rng)
	}
}

func (r *Resolver) materialiseWorkspace(name, rng string) (*ResolvedPackage, error) {
	if r.Workspace == nil {
		return nil, fmt.Errorf("workspace source for %s but no workspace catalog configured", name)
	}
	info, ok := r.Workspace.Workspaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: workspace %q not found", ErrWorkspaceNotFound, name)
	}
	if semver.IsExact(rng) && rng != "*" && !strings.HasPrefix(rng, "workspace:") {
		if info.Manifest.Version != rng {
			return nil, fmt.Errorf("workspace %q version %q does not satisfy exact requirement %q", name, info.Manifest.Version, rng)
		}
	}
	deps, _ := info.Manifest.AllDependencies()
	return &ResolvedPackage{
		Name:                 name,
		Version:              info.Manifest.Version,
		Source:               SourceWorkspace,
		Resolved:             info.Dir,
		Dependencies:         deps,
		OptionalDependencies: info.Manifest.OptionalDependencies,
		PeerDependencies:     info.Manifest.PeerDependencies,
	}, nil
}

// materialisePseudo synthesises a stable pseudo-version from a hash of
// the spec, per spec §4.J.3.c, so dedup stays deterministic even though
// git/file/link sources have no registry version list.
func (r *Resolver) materialisePseudo(name, rng string, source Source) (*ResolvedPackage, error) {
	sum := sha256.Sum256([]byte(name + "@" + rng))
	pseudoVersion := "0.0.0-" + hex.EncodeToString(sum[:])[:12]
	return &ResolvedPackage{
		Name:     name,
		Version:  pseudoVersion,
		Source:   source,
		Resolved: strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(rng, "git+"), "file:"), "link:"),
	}, nil
}

func (r *Resolver) materialiseRegistry(ctx context.Context, name, rng string) (*ResolvedPackage, error) {
	version := rng
	if !semver.IsExact(rng) {
		versions, err := r.Registry.Versions(ctx, name)
		if err != nil {
			return nil, err
		}
		parsed := make([]semver.Version, 0, len(versions))
		for _, v := range versions {
			pv, err := semver.Parse(v)
			if err != nil {
				continue
			}
			parsed = append(parsed, pv)
		}
		rangeSpec, err := semver.ParseRange(rng)
		if err != nil {
			return nil, &InvalidRangeError{Range: rng}
		}
		max, ok := rangeSpec.Max(parsed)
		if !ok {
			return nil, fmt.Errorf("%w: no version of %s satisfies %q", ErrNoMatchingVersion, name, rng)
		}
		version = max.String()
	}

	m, err := r.Registry.Manifest(ctx, name, version)
	if err != nil {
		return nil, err
	}

	return &ResolvedPackage{
		Name:                 name,
		Version:              m.Version,
		Source:               SourceRegistry,
		Resolved:             m.Dist.Tarball,
		Integrity:            m.Dist.Integrity,
		Dependencies:         m.Dependencies,
		OptionalDependencies: m.OptionalDependencies,
		PeerDependencies:     m.PeerDependencies,
	}, nil
}

func isOptionalMiss(err error) bool {
	var notFound *registry.NotFoundError
	return errors.As(err, &notFound)
}

// Names returns the admitted packages' names as a set, useful for
// workspace-aware pruning.
func (g *DependencyGraph) Names() mapset.Set {
	s := mapset.NewSet()
	for _, p := range g.Packages {
		s.Add(p.Name)
	}
	return s
}

// AggregateErrors collects independent per-package failures into one
// error using the same go-multierror aggregation the teacher uses for
// parallel fan-out failures.
func AggregateErrors(errs ...error) error {
	var result *multierror.Error
	for _, e := range errs {
		if e != nil {
			result = multierror.Append(result, e)
		}
	}
	return result.ErrorOrNil()
}
