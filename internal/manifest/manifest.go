// Package manifest models an npm package.json document: the structured
// fields the rest of hoard reasons about, plus every field the ecosystem
// has added over the years that hoard merely has to round-trip.
package manifest

import (
	"bytes"
	"encoding/json"
)

// Manifest represents a package.json. Structured fields are promoted for
// type safety; everything else is preserved verbatim in RawJSON so that
// fields unknown to hoard survive a read-modify-write cycle.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Main        string `json:"main,omitempty"`
	License     string `json:"license,omitempty"`

	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`

	Overrides          json.RawMessage   `json:"overrides,omitempty"`
	Resolutions        map[string]string `json:"resolutions,omitempty"`
	PatchedDependencies map[string]string `json:"patchedDependencies,omitempty"`

	Workspaces Workspaces `json:"workspaces,omitempty"`
	Private    bool       `json:"private,omitempty"`
	Bin        BinField   `json:"bin,omitempty"`
	Scripts    map[string]string `json:"scripts,omitempty"`
	Engines    map[string]string `json:"engines,omitempty"`

	PackageManager string `json:"packageManager,omitempty"`

	// RawJSON holds the full decoded document; structured fields above take
	// priority over it on encode.
	RawJSON map[string]interface{} `json:"-"`
}

// Workspaces accepts the three legal shapes of the `workspaces` field:
// a bare string, an array of globs, or `{packages: [...]}`.
type Workspaces []string

type workspacesObject struct {
	Packages []string `json:"packages"`
}

// UnmarshalJSON implements the three-shape decoding described on Workspaces.
func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*w = Workspaces{single}
		return nil
	}

	var obj workspacesObject
	if err := json.Unmarshal(data, &obj); err == nil && obj.Packages != nil {
		*w = Workspaces(obj.Packages)
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*w = Workspaces(arr)
	return nil
}

// BinField accepts either a bare string (package name implied) or a
// name->path map.
type BinField map[string]string

// binSingleKey is the placeholder key UnmarshalJSON stores a bare-string
// bin path under, since the executable's real name (the package's own
// name) isn't known until the rest of the manifest has decoded. Parse
// rewrites it to the package name once that's available.
const binSingleKey = ""

// UnmarshalJSON implements the two-shape decoding described on BinField.
func (b *BinField) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*b = BinField{binSingleKey: single}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*b = m
	return nil
}

// Parse decodes raw package.json bytes into a Manifest, preserving unknown
// fields in RawJSON.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.RawJSON = raw
	if path, ok := m.Bin[binSingleKey]; ok {
		delete(m.Bin, binSingleKey)
		if m.Name != "" {
			m.Bin[m.Name] = path
		}
	}
	return &m, nil
}

// Marshal serialises m back to JSON, letting structured fields override
// whatever RawJSON carried for the same key.
func Marshal(m *Manifest) ([]byte, error) {
	structured, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var structuredFields map[string]interface{}
	if err := json.Unmarshal(structured, &structuredFields); err != nil {
		return nil, err
	}

	merged := make(map[string]interface{}, len(m.RawJSON))
	for k, v := range m.RawJSON {
		merged[k] = v
	}
	for k, v := range structuredFields {
		merged[k] = v
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(merged); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AllDependencies merges dependencies and devDependencies, tagging which
// names came from devDependencies.
func (m *Manifest) AllDependencies() (deps map[string]string, isDev map[string]bool) {
	deps = make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	isDev = make(map[string]bool, len(m.DevDependencies))
	for name, rng := range m.Dependencies {
		deps[name] = rng
	}
	for name, rng := range m.DevDependencies {
		deps[name] = rng
		isDev[name] = true
	}
	return deps, isDev
}
