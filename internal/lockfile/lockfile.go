// Package lockfile implements the canonical lockfile schema and importers
// that normalise npm v3, yarn classic, yarn berry and pnpm lockfiles into
// it, grounded on the teacher's internal/lockfile package which gives each
// package-manager format its own decoder behind a shared interface.
package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// CurrentVersion is the lockfile schema version this package emits.
const CurrentVersion = 3

// LockFile is the canonical, package-manager-agnostic resolution record.
// Two packages with the same key must carry identical Version, Resolved
// and Integrity; Put returns a MismatchError when that invariant is
// violated in source data.
type LockFile struct {
	LockfileVersion int                       `json:"lockfileVersion"`
	Packages        map[string]*LockFilePackage `json:"packages"`
}

// LockFilePackage is one resolved entry, keyed by "<name>@<version>" in
// the canonical form.
type LockFilePackage struct {
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved,omitempty"`
	Integrity            string            `json:"integrity,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	Dev                  bool              `json:"dev,omitempty"`
	Optional             bool              `json:"optional,omitempty"`
	Engines              map[string]string `json:"engines,omitempty"`
}

// ImportError is returned by importers for malformed source lockfiles.
type ImportError struct {
	Format string
	Reason string
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("lockfile: malformed %s lockfile: %s", e.Format, e.Reason)
}

// MismatchError signals that two importer entries disagree about the
// same package key's identity.
type MismatchError struct {
	Key              string
	Field            string
	First, Second string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("lockfile: conflicting %s for %s: %q vs %q", e.Field, e.Key, e.First, e.Second)
}

// New returns an empty canonical lockfile at the current schema version.
func New() *LockFile {
	return &LockFile{LockfileVersion: CurrentVersion, Packages: map[string]*LockFilePackage{}}
}

// Put inserts or merges an entry, enforcing the identical-fields
// invariant for repeated keys (distinct importers, or repeated entries
// within one format, may legitimately observe the same package twice).
func (l *LockFile) Put(key string, pkg *LockFilePackage) error {
	existing, ok := l.Packages[key]
	if !ok {
		l.Packages[key] = pkg
		return nil
	}
	if existing.Version != pkg.Version {
		return &MismatchError{key, "version", existing.Version, pkg.Version}
	}
	if existing.Resolved != "" && pkg.Resolved != "" && existing.Resolved != pkg.Resolved {
		return &MismatchError{key, "resolved", existing.Resolved, pkg.Resolved}
	}
	if existing.Integrity != "" && pkg.Integrity != "" && existing.Integrity != pkg.Integrity {
		return &MismatchError{key, "integrity", existing.Integrity, pkg.Integrity}
	}
	return nil
}

// Encode serialises the lockfile with keys sorted alphabetically so
// repeated writes of an unchanged graph produce byte-identical output.
func (l *LockFile) Encode() ([]byte, error) {
	keys := make([]string, 0, len(l.Packages))
	for k := range l.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`{"lockfileVersion":`)
	fmt.Fprintf(&buf, "%d", l.LockfileVersion)
	buf.WriteString(`,"packages":{`)
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		pkgJSON, err := json.Marshal(l.Packages[k])
		if err != nil {
			return nil, err
		}
		buf.Write(pkgJSON)
	}
	buf.WriteString("}}")

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return pretty.Bytes(), nil
}

// Decode parses a previously-emitted canonical lockfile.
func Decode(data []byte) (*LockFile, error) {
	var l LockFile
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, &ImportError{"canonical", err.Error()}
	}
	if l.Packages == nil {
		l.Packages = map[string]*LockFilePackage{}
	}
	return &l, nil
}

// Importer normalises a package-manager-specific lockfile into the
// canonical form.
type Importer interface {
	Import(content []byte) (*LockFile, error)
}
