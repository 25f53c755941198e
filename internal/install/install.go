// Package install orchestrates a full install: it wires the manifest
// reader, workspace manager, overrides resolver, registry client,
// dependency resolver, cache/store/integrity pipeline, lockfile writer
// and lifecycle script execution into the single data flow described by
// spec.md's component overview. It plays the same role the teacher's
// internal/run package plays for `turbo run`: a thin conductor with no
// business logic of its own, delegating every step to the package that
// owns it.
package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hoardpm/hoard/internal/config"
	"github.com/hoardpm/hoard/internal/integrity"
	"github.com/hoardpm/hoard/internal/lockfile"
	"github.com/hoardpm/hoard/internal/manifest"
	"github.com/hoardpm/hoard/internal/overrides"
	"github.com/hoardpm/hoard/internal/pkgcache"
	"github.com/hoardpm/hoard/internal/procrunner"
	"github.com/hoardpm/hoard/internal/registry"
	"github.com/hoardpm/hoard/internal/resolver"
	"github.com/hoardpm/hoard/internal/scriptpool"
	"github.com/hoardpm/hoard/internal/store"
	"github.com/hoardpm/hoard/internal/workspace"
)

// LockfileFormat identifies the on-disk lockfile a project already has,
// supplementing spec.md with the package-manager auto-detection the
// teacher's internal/packagemanager.GetPackageManager performs for
// `turbo run`.
type LockfileFormat string

const (
	FormatNone  LockfileFormat = ""
	FormatNpm   LockfileFormat = "npm"
	FormatYarn  LockfileFormat = "yarn"
	FormatBerry LockfileFormat = "yarn-berry"
	FormatPnpm  LockfileFormat = "pnpm"
	FormatHoard LockfileFormat = "hoard"
)

// candidateLockfiles mirrors the Specfile/Lockfile pairs the teacher's
// packagemanager.go registers for npm, yarn classic, yarn berry and
// pnpm; detectPackageManager walks the same list by file presence.
var candidateLockfiles = []struct {
	file   string
	format LockfileFormat
}{
	{"hoard-lock.json", FormatHoard},
	{"package-lock.json", FormatNpm},
	{"pnpm-lock.yaml", FormatPnpm},
	{"yarn.lock", FormatYarn}, // berry vs classic disambiguated by content below
}

// DetectLockfile sniffs projectDir for an existing lockfile, the way the
// teacher's detectPackageManager inspects on-disk state rather than
// trusting a single declared value. A yarn.lock is further classified as
// classic or berry by its header line, since both share the filename.
func DetectLockfile(projectDir string) LockfileFormat {
	for _, c := range candidateLockfiles {
		path := filepath.Join(projectDir, c.file)
		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			continue
		}
		if c.format == FormatYarn && looksLikeBerry(data) {
			return FormatBerry
		}
		return c.format
	}
	return FormatNone
}

// looksLikeBerry reports whether a yarn.lock's header identifies the
// berry (v2+) metadata block rather than the classic v1 comment header.
func looksLikeBerry(data []byte) bool {
	const marker = "__metadata"
	for i := 0; i+len(marker) <= len(data) && i < 4096; i++ {
		if string(data[i:i+len(marker)]) == marker {
			return true
		}
	}
	return false
}

// Options configures a single Run.
type Options struct {
	ProjectDir string
	Logger     hclog.Logger

	// Workers bounds the script pool's concurrency; zero uses a small
	// default suited to a single project install.
	Workers int
	// MaxQueuedScripts bounds the script pool's backlog before Execute
	// returns ErrQueueFull synchronously, per spec §6.
	MaxQueuedScripts int
}

// Result summarises a completed install.
type Result struct {
	Graph          *resolver.DependencyGraph
	LockFile       *lockfile.LockFile
	DetectedFormat LockfileFormat
	ScriptResults  []*scriptpool.ProcessResult
}

// lifecycleScripts runs in this fixed order per npm convention; "install"
// covers node-gyp-style rebuilds and is best-effort like the others.
var lifecycleScripts = []string{"preinstall", "install", "postinstall"}

// Installer wires the full dependency pipeline for one project directory.
type Installer struct {
	opts     Options
	logger   hclog.Logger
	cfg      *config.Config
	registry *registry.Client
	cache    *pkgcache.Cache
	store    *store.Store
	pool     *scriptpool.Pool
	runner   *procrunner.Runner
}

// New loads configuration and constructs every collaborator an install
// needs, in the order spec.md's component overview lists them: config,
// then registry, cache and store below it.
func New(opts Options) (*Installer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxQueuedScripts <= 0 {
		opts.MaxQueuedScripts = 256
	}

	cfg, err := config.Load(opts.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("install: loading configuration: %w", err)
	}

	regClient := registry.New(registry.Config{
		DefaultRegistry:  cfg.Registry,
		ScopedRegistries: cfg.ScopedRegistries,
		AuthTokens:       cfg.AuthTokens,
		MaxRetries:       cfg.MaxRetries,
		Timeout:          cfg.HTTPTimeout,
		UserAgent:        cfg.UserAgent,
		Logger:           logger,
	})

	cache := pkgcache.New(cfg.CacheDir, logger)

	strategy := store.LinkAuto
	switch {
	case cfg.UseSymlinks:
		strategy = store.LinkSymlink
	case cfg.UseHardlinks:
		strategy = store.LinkHardlink
	}
	st := store.New(cfg.StoreDir, strategy, logger)

	runner := procrunner.New(logger)
	pool := scriptpool.New(opts.Workers, opts.MaxQueuedScripts, runner, 2*time.Hour, logger)

	return &Installer{
		opts:     opts,
		logger:   logger.Named("install"),
		cfg:      cfg,
		registry: regClient,
		cache:    cache,
		store:    st,
		pool:     pool,
		runner:   runner,
	}, nil
}

// Close releases the script pool's workers. Callers that finish a Run and
// do not intend to issue further script executions should call this.
func (i *Installer) Close() {
	i.pool.Dispose()
}

// Run performs a full install for the project rooted at opts.ProjectDir:
// resolve the dependency graph, fetch and materialise every package,
// write the lockfile, and run lifecycle scripts, matching the data flow
// spec.md's overview describes end to end.
func (i *Installer) Run(ctx context.Context) (*Result, error) {
	root, err := i.readRootManifest()
	if err != nil {
		return nil, err
	}

	format := DetectLockfile(i.opts.ProjectDir)
	i.logger.Debug("detected existing lockfile", "format", format)

	ws, err := workspace.Discover(i.opts.ProjectDir, i.logger)
	if err != nil {
		return nil, fmt.Errorf("install: discovering workspaces: %w", err)
	}

	overridesResolver, err := overrides.New(root.Overrides, root.Resolutions)
	if err != nil {
		return nil, fmt.Errorf("install: parsing overrides: %w", err)
	}

	res := resolver.New(i.registry, overridesResolver, ws, i.logger)
	graph, err := res.Resolve(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("install: resolving dependency graph: %w", err)
	}

	if err := i.materialiseAll(ctx, graph); err != nil {
		return nil, err
	}

	lf, err := i.writeLockfile(graph)
	if err != nil {
		return nil, err
	}

	scriptResults, err := i.runLifecycleScripts(ctx, root)
	if err != nil {
		return nil, err
	}

	return &Result{
		Graph:          graph,
		LockFile:       lf,
		DetectedFormat: format,
		ScriptResults:  scriptResults,
	}, nil
}

func (i *Installer) readRootManifest() (*manifest.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(i.opts.ProjectDir, "package.json")) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("install: reading package.json: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("install: parsing package.json: %w", err)
	}
	return m, nil
}

// materialiseAll fetches, caches, extracts into the store and links every
// registry-sourced package in graph into the project's node_modules. Per
// spec.md's overview: cache is consulted first; on miss the registry
// streams the tarball, which is verified then piped into the store and
// cache together.
func (i *Installer) materialiseAll(ctx context.Context, graph *resolver.DependencyGraph) error {
	var errs *multierror.Error
	for _, pkg := range graph.Packages {
		if pkg.Source != resolver.SourceRegistry {
			continue
		}
		if err := i.materialiseOne(ctx, pkg); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s@%s: %w", pkg.Name, pkg.Version, err))
		}
	}
	return errs.ErrorOrNil()
}

func (i *Installer) materialiseOne(ctx context.Context, pkg *resolver.ResolvedPackage) error {
	if !i.store.Exists(pkg.Name, pkg.Version) {
		if err := i.fetchIntoStore(ctx, pkg); err != nil {
			return err
		}
	}

	target := filepath.Join(i.opts.ProjectDir, "node_modules", pkg.Name)
	if err := i.store.Link(pkg.Name, pkg.Version, target); err != nil {
		return fmt.Errorf("linking into node_modules: %w", err)
	}

	return i.linkBins(target, pkg)
}

// fetchIntoStore consults the tarball cache, falling back to the
// registry on a miss, verifying integrity against a seekable temp copy,
// then extracting that copy into the content-addressable store and
// populating the cache for next time. Buffering to disk once lets both
// the integrity check and the store extraction rewind the same stream,
// rather than requiring the registry client to support multiple reads.
func (i *Installer) fetchIntoStore(ctx context.Context, pkg *resolver.ResolvedPackage) error {
	if i.cache.Exists(pkg.Name, pkg.Version, pkg.Integrity) {
		rc, err := i.cache.Get(pkg.Name, pkg.Version, pkg.Integrity)
		if err == nil && rc != nil {
			defer rc.Close() //nolint:errcheck
			return i.store.Add(pkg.Name, pkg.Version, rc)
		}
	}

	body, err := i.registry.Tarball(ctx, pkg.Name, pkg.Version)
	if err != nil {
		return fmt.Errorf("fetching tarball: %w", err)
	}
	defer body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "hoard-tarball-*.tgz")
	if err != nil {
		return fmt.Errorf("buffering tarball: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	defer tmp.Close()           //nolint:errcheck

	if _, err := io.Copy(tmp, body); err != nil {
		return fmt.Errorf("buffering tarball: %w", err)
	}

	if pkg.Integrity != "" {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("buffering tarball: %w", err)
		}
		if !integrity.Verify(tmp, pkg.Integrity) {
			return fmt.Errorf("integrity mismatch for %s@%s", pkg.Name, pkg.Version)
		}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("buffering tarball: %w", err)
	}
	if err := i.store.Add(pkg.Name, pkg.Version, tmp); err != nil {
		return fmt.Errorf("extracting into store: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil //nolint:nilerr
	}
	if err := i.cache.Put(pkg.Name, pkg.Version, pkg.Integrity, tmp); err != nil {
		i.logger.Warn("failed to populate tarball cache", "name", pkg.Name, "version", pkg.Version, "err", err)
	}
	return nil
}

func (i *Installer) linkBins(packageDir string, pkg *resolver.ResolvedPackage) error {
	m, err := i.readManifestFrom(packageDir)
	if err != nil || m == nil || len(m.Bin) == 0 {
		return nil
	}
	binDir := filepath.Join(i.opts.ProjectDir, "node_modules", ".bin")
	return store.LinkBins(packageDir, binDir, m.Bin)
}

func (i *Installer) readManifestFrom(packageDir string) (*manifest.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(packageDir, "package.json")) //nolint:gosec
	if err != nil {
		return nil, nil //nolint:nilerr
	}
	return manifest.Parse(data)
}

// writeLockfile builds the canonical lockfile from the resolved graph,
// sorted deterministically, matching spec.md's "lockfile writer imposes a
// total order" ordering guarantee.
func (i *Installer) writeLockfile(graph *resolver.DependencyGraph) (*lockfile.LockFile, error) {
	lf := lockfile.New()

	keys := make([]string, 0, len(graph.Packages))
	for k := range graph.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		pkg := graph.Packages[k]
		if err := lf.Put(pkg.Key(), &lockfile.LockFilePackage{
			Version:              pkg.Version,
			Resolved:             pkg.Resolved,
			Integrity:            pkg.Integrity,
			Dependencies:         pkg.Dependencies,
			OptionalDependencies: pkg.OptionalDependencies,
			PeerDependencies:     pkg.PeerDependencies,
			Dev:                  pkg.Dev,
			Optional:             pkg.Optional,
		}); err != nil {
			return nil, fmt.Errorf("install: building lockfile: %w", err)
		}
	}

	data, err := lf.Encode()
	if err != nil {
		return nil, fmt.Errorf("install: encoding lockfile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(i.opts.ProjectDir, "hoard-lock.json"), data, 0o644); err != nil { //nolint:gosec
		return nil, fmt.Errorf("install: writing lockfile: %w", err)
	}
	return lf, nil
}

// runLifecycleScripts queues preinstall, install and postinstall (the
// ones declared on the root manifest) through the script pool, in order,
// stopping at the first failure — matching npm's own lifecycle ordering.
// Partial success is allowed for everything after "install" per spec
// §7's "post* scripts" note, but preinstall/install failures are fatal.
func (i *Installer) runLifecycleScripts(ctx context.Context, root *manifest.Manifest) ([]*scriptpool.ProcessResult, error) {
	var results []*scriptpool.ProcessResult
	for _, name := range lifecycleScripts {
		script, ok := root.Scripts[name]
		if !ok || script == "" {
			continue
		}
		result, err := i.RunScript(ctx, name, 0)
		if err != nil {
			return results, fmt.Errorf("install: running %s script: %w", name, err)
		}
		results = append(results, result)
		if result.Err != nil {
			return results, fmt.Errorf("install: %s script: %w", name, result.Err)
		}
		if result.Canceled {
			return results, fmt.Errorf("install: %s script canceled", name)
		}
		if result.Result != nil && !result.Result.Success {
			if name == "postinstall" {
				i.logger.Warn("postinstall script failed, continuing", "err", result.Result.StandardError)
				continue
			}
			return results, fmt.Errorf("install: %s script failed: %s", name, result.Result.StandardError)
		}
	}
	return results, nil
}

// RunScript queues an arbitrary package.json script through the script
// pool, building the npm_* environment spec §6 specifies and resolving
// its timeout from the per-script table, falling back to the pool
// default. A zero priority runs lifecycle scripts ahead of nothing in
// particular; callers running user-invoked scripts may pass a higher
// priority to preempt queued lifecycle work.
func (i *Installer) RunScript(ctx context.Context, name string, priority int) (*scriptpool.ProcessResult, error) {
	root, err := i.readRootManifest()
	if err != nil {
		return nil, err
	}
	script, ok := root.Scripts[name]
	if !ok {
		return nil, fmt.Errorf("install: no script named %q", name)
	}

	env := scriptEnv(root, name)

	req := scriptpool.Request{
		ID:       name,
		Priority: priority,
		Timeout:  scriptTimeout(name),
		Proc: procrunner.Request{
			Command:        shellCommand(),
			Args:           append(shellArgs(), script),
			Cwd:            i.opts.ProjectDir,
			Env:            env,
			WorkspaceDir:   i.opts.ProjectDir,
			HealthInterval: 0,
			KillGrace:      killGraceDefault,
		},
	}
	return i.pool.Execute(ctx, req)
}

// Stats exposes the script pool's resource/queue stats for callers that
// want to surface install progress.
func (i *Installer) Stats() scriptpool.Stats {
	return i.pool.Stats()
}

const killGraceDefault = 5 * time.Second

// scriptTimeout resolves the per-script timeout table from spec §5,
// falling back to the 5-minute default for anything not listed.
func scriptTimeout(name string) time.Duration {
	switch name {
	case "test":
		return 10 * time.Minute
	case "build":
		return 15 * time.Minute
	case "install", "preinstall", "postinstall":
		return 10 * time.Minute
	case "start":
		return time.Hour
	default:
		return 5 * time.Minute
	}
}

// scriptEnv builds the npm_* environment variables spec §6 requires,
// one npm_package_scripts_<name> entry per declared script plus the
// lifecycle event name when name is itself one of the lifecycle hooks.
func scriptEnv(m *manifest.Manifest, name string) []string {
	env := []string{
		"npm_package_name=" + m.Name,
		"npm_package_version=" + m.Version,
		"npm_package_description=" + m.Description,
	}
	for scriptName, cmd := range m.Scripts {
		env = append(env, "npm_package_scripts_"+scriptName+"="+cmd)
	}
	for _, lifecycle := range lifecycleScripts {
		if lifecycle == name {
			env = append(env, "npm_lifecycle_event="+name)
			break
		}
	}
	return env
}

func shellCommand() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "sh"
}

func shellArgs() []string {
	if runtime.GOOS == "windows" {
		return []string{"/C"}
	}
	return []string{"-c"}
}
