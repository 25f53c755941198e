package lockfile

import (
	"regexp"

	"gopkg.in/yaml.v3"
)

// PnpmImporter imports pnpm-lock.yaml files, grounded on the teacher's
// PnpmLockfile/PackageSnapshot/PackageResolution structs in
// cli/internal/lockfile/pnpm_lockfile.go, using the same gopkg.in/
// yaml.v3 decoding rather than a hand-rolled YAML reader.
type PnpmImporter struct{}

var _ Importer = PnpmImporter{}

type pnpmLockfile struct {
	LockfileVersion interface{}                `yaml:"lockfileVersion"`
	Packages        map[string]pnpmPackage     `yaml:"packages"`
}

type pnpmPackage struct {
	Resolution pnpmResolution    `yaml:"resolution"`
	Dependencies         map[string]string `yaml:"dependencies,omitempty"`
	OptionalDependencies map[string]string `yaml:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `yaml:"peerDependencies,omitempty"`
	Dev                  bool              `yaml:"dev,omitempty"`
	Optional             bool              `yaml:"optional,omitempty"`
}

type pnpmResolution struct {
	Integrity string `yaml:"integrity,omitempty"`
	Tarball   string `yaml:"tarball,omitempty"`
}

// pnpmKey matches "/name@version" and "/@scope/name@version".
var pnpmKey = regexp.MustCompile(`^/(.+)@([^@/]+)$`)

// Import parses pnpm-lock.yaml content into the canonical form.
func (PnpmImporter) Import(content []byte) (*LockFile, error) {
	var raw pnpmLockfile
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, &ImportError{"pnpm", err.Error()}
	}

	out := New()
	for rawKey, entry := range raw.Packages {
		name, version, ok := pnpmParseKey(rawKey)
		if !ok {
			continue
		}
		key := name + "@" + version
		if err := out.Put(key, &LockFilePackage{
			Version:              version,
			Resolved:             entry.Resolution.Tarball,
			Integrity:            entry.Resolution.Integrity,
			Dependencies:         entry.Dependencies,
			OptionalDependencies: entry.OptionalDependencies,
			PeerDependencies:     entry.PeerDependencies,
			Dev:                  entry.Dev,
			Optional:             entry.Optional,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func pnpmParseKey(key string) (name, version string, ok bool) {
	m := pnpmKey.FindStringSubmatch(key)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
