package lockfile

import (
	"fmt"
	"regexp"
	"strings"

	yarnlock "github.com/iseki0/go-yarnlock"
	"github.com/pkg/errors"
)

// YarnClassicImporter imports yarn.lock files written by yarn 1.x (the
// "classic" line-oriented format), delegating the actual line grammar to
// github.com/iseki0/go-yarnlock the same way the teacher's YarnLockfile
// wraps that library rather than hand-parsing `"a@^1.0.0, a@^1.1.0":`
// blocks itself.
type YarnClassicImporter struct{}

var _ Importer = YarnClassicImporter{}

var classicEntryKeyName = regexp.MustCompile(`^(@?[^@]+(?:/[^@]+)?)@`)

// Import parses yarn.lock content into the canonical form.
func (YarnClassicImporter) Import(content []byte) (*LockFile, error) {
	parsed, err := yarnlock.ParseLockFileData(content)
	if err != nil {
		return nil, &ImportError{"yarn-classic", errors.Wrap(err, "parsing yarn.lock").Error()}
	}

	out := New()
	for descriptor, entry := range parsed {
		name := classicPackageName(descriptor)
		if name == "" {
			continue
		}
		key := fmt.Sprintf("%s@%s", name, entry.Version)
		if err := out.Put(key, &LockFilePackage{
			Version:              entry.Version,
			Dependencies:         entry.Dependencies,
			OptionalDependencies: entry.OptionalDependencies,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// classicPackageName extracts the bare package name from one comma
// member of a yarn classic descriptor line, e.g. `"a@^1.0.0"` -> "a",
// `"@scope/a@^1.0.0"` -> "@scope/a".
func classicPackageName(descriptor string) string {
	first := strings.SplitN(descriptor, ",", 2)[0]
	first = strings.TrimSpace(strings.Trim(first, `"`))
	m := classicEntryKeyName.FindStringSubmatch(first)
	if m == nil {
		return ""
	}
	return m[1]
}
