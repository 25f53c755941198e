package lockfile

import (
	"encoding/json"
	"strings"
)

// npmPackagesLockfile is the subset of package-lock.json's "packages"
// field shape this importer cares about, grounded on the teacher's
// NpmLockfile/NpmPackage in cli/internal/lockfile/npm_lockfile.go.
type npmPackagesLockfile struct {
	LockfileVersion int                       `json:"lockfileVersion"`
	Packages        map[string]npmPackageEntry `json:"packages"`
	Dependencies    map[string]json.RawMessage `json:"dependencies"`
}

type npmPackageEntry struct {
	Name                 string            `json:"name,omitempty"`
	Version              string            `json:"version,omitempty"`
	Resolved             string            `json:"resolved,omitempty"`
	Integrity            string            `json:"integrity,omitempty"`
	Dev                  bool              `json:"dev,omitempty"`
	Optional             bool              `json:"optional,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	Engines              map[string]string `json:"engines,omitempty"`
}

// NpmImporter imports npm v3+ package-lock.json files (the `packages`
// keyed shape; older lockfileVersion <= 1 files using only the legacy
// `dependencies` tree are rejected as unsupported, matching the
// teacher's own DecodeNpmLockfile, which refuses to crawl that shape).
type NpmImporter struct{}

var _ Importer = NpmImporter{}

// Import parses package-lock.json content into the canonical form.
func (NpmImporter) Import(content []byte) (*LockFile, error) {
	var raw npmPackagesLockfile
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, &ImportError{"npm", err.Error()}
	}

	ancient := raw.LockfileVersion <= 1 || (len(raw.Dependencies) > 0 && len(raw.Packages) == 0)
	if ancient {
		return nil, &ImportError{"npm", "lockfileVersion <= 1 (no 'packages' field) is not supported"}
	}

	out := New()
	for path, entry := range raw.Packages {
		if path == "" {
			// Root project entry: not itself a resolvable dependency.
			continue
		}
		name := npmPackageName(path, entry.Name)
		if name == "" {
			continue
		}
		key := name + "@" + entry.Version
		if err := out.Put(key, &LockFilePackage{
			Version:              entry.Version,
			Resolved:             entry.Resolved,
			Integrity:            entry.Integrity,
			Dev:                  entry.Dev,
			Optional:             entry.Optional,
			Dependencies:         mergeNpmDeps(entry.Dependencies, entry.DevDependencies),
			OptionalDependencies: entry.OptionalDependencies,
			PeerDependencies:     entry.PeerDependencies,
			Engines:              entry.Engines,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// npmPackageName recovers a package name from a `packages` key by
// stripping the longest `node_modules/` prefix, e.g.
// "node_modules/a/node_modules/b" -> "b".
func npmPackageName(path, explicit string) string {
	if idx := strings.LastIndex(path, "node_modules/"); idx != -1 {
		return path[idx+len("node_modules/"):]
	}
	if explicit != "" {
		return explicit
	}
	return path
}

func mergeNpmDeps(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
