package lockfile

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// YarnBerryImporter imports yarn berry (yarn 2+) lockfiles, detected by
// the `__metadata:` root key or a `languageName: node` entry field, in
// the spirit of the teacher's BerryLockfile which parses the same
// `"name@npm:range":` block shape via gopkg.in/yaml.v3, though this
// importer flattens straight to the canonical model instead of keeping
// the teacher's separate descriptor/locator graph.
type YarnBerryImporter struct{}

var _ Importer = YarnBerryImporter{}

type berryLockfile map[string]berryEntry

type berryEntry struct {
	Version          string            `yaml:"version"`
	LanguageName     string            `yaml:"languageName,omitempty"`
	Resolution       string            `yaml:"resolution,omitempty"`
	Checksum         string            `yaml:"checksum,omitempty"`
	Dependencies     map[string]string `yaml:"dependencies,omitempty"`
	PeerDependencies map[string]string `yaml:"peerDependencies,omitempty"`
}

var berryResolutionName = regexp.MustCompile(`^(.+)@(?:npm|workspace|patch|file|link):`)

// IsYarnBerry reports whether content looks like a yarn berry lockfile
// rather than a classic one.
func IsYarnBerry(content []byte) bool {
	return strings.Contains(string(content), "__metadata:") || strings.Contains(string(content), "languageName: node")
}

// Import parses yarn berry lockfile content into the canonical form.
func (YarnBerryImporter) Import(content []byte) (*LockFile, error) {
	var raw berryLockfile
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, &ImportError{"yarn-berry", err.Error()}
	}

	out := New()
	for descriptor, entry := range raw {
		if descriptor == "__metadata" {
			continue
		}
		name := berryPackageName(descriptor, entry.Resolution)
		if name == "" || entry.Version == "" {
			continue
		}
		key := name + "@" + entry.Version

		integrity := ""
		if entry.Checksum != "" {
			integrity = "sha512-" + entry.Checksum
		}

		if err := out.Put(key, &LockFilePackage{
			Version:          entry.Version,
			Integrity:        integrity,
			Dependencies:     entry.Dependencies,
			PeerDependencies: entry.PeerDependencies,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// berryPackageName prefers the name encoded in the `resolution` field
// (stable even for aliased/patched descriptors) and falls back to the
// first descriptor in a comma-separated key.
func berryPackageName(descriptor, resolution string) string {
	if m := berryResolutionName.FindStringSubmatch(resolution); m != nil {
		return m[1]
	}
	first := strings.TrimSpace(strings.Trim(strings.SplitN(descriptor, ",", 2)[0], `"`))
	if m := berryResolutionName.FindStringSubmatch(first); m != nil {
		return m[1]
	}
	return ""
}
