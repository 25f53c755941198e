// Package overrides implements npm's flat/nested `overrides` field and
// yarn's flat `resolutions` field: given a child dependency name and its
// requested range, compute the replacement range a parent package.json
// wants to force instead.
package overrides

import (
	"encoding/json"
	"strings"
)

// Resolver answers override queries against a root manifest's `overrides`
// and `resolutions` fields.
type Resolver struct {
	// resolutions holds yarn's `resolutions`, keyed by bare child name.
	// flat maps a bare child name to its replacement range, populated from
	// top-level string-valued `overrides` entries.
	resolutions map[string]string
	flat        map[string]string
	// chains maps a `parent>child>...>leaf` key to its replacement range,
	// built by flattening nested override objects.
	chains map[string]string
}

// New builds a Resolver from the raw `overrides` and `resolutions` JSON
// fields of the root manifest. Either may be nil.
func New(overridesJSON []byte, resolutions map[string]string) (*Resolver, error) {
	r := &Resolver{
		resolutions: resolutions,
		flat:        map[string]string{},
		chains:      map[string]string{},
	}

	if len(overridesJSON) == 0 {
		return r, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(overridesJSON, &raw); err != nil {
		return nil, err
	}
	r.flatten("", raw)
	return r, nil
}

// flatten walks nested override objects, turning
//
//	{"a": {"b": "1.0.0"}}
//
// into a chain entry "a>b" -> "1.0.0", and a bare string value
//
//	{"a": "1.0.0"}
//
// into a flat entry "a" -> "1.0.0".
func (r *Resolver) flatten(prefix string, raw map[string]json.RawMessage) {
	for name, value := range raw {
		key := name
		if prefix != "" {
			key = prefix + ">" + name
		}

		var asString string
		if err := json.Unmarshal(value, &asString); err == nil {
			if prefix == "" {
				r.flat[name] = asString
			} else {
				r.chains[key] = asString
			}
			continue
		}

		var asObject map[string]json.RawMessage
		if err := json.Unmarshal(value, &asObject); err == nil {
			// Nested objects may carry their own version selector under the
			// "." key (npm's override-with-self-and-children shape); only
			// string values are honored, anything else is ignored.
			if self, ok := asObject["."]; ok {
				var selfStr string
				if err := json.Unmarshal(self, &selfStr); err == nil {
					if prefix == "" {
						r.flat[name] = selfStr
					} else {
						r.chains[key] = selfStr
					}
				}
				delete(asObject, ".")
			}
			r.flatten(key, asObject)
		}
		// Any other JSON type (number, bool, array, null) is ignored.
	}
}

// Replacement returns the override range hoard should substitute for
// childName's requested range when resolved as a dependency of parentChain
// (a `>`-joined ancestor chain ending in the direct parent, empty for a
// root dependency). Precedence: resolutions beats flat overrides beats
// nested chain overrides; the most specific matching chain wins.
func (r *Resolver) Replacement(parentChain, childName string) (string, bool) {
	if rng, ok := r.resolutions[childName]; ok {
		return rng, true
	}
	if rng, ok := r.flat[childName]; ok {
		return rng, true
	}

	full := childName
	if parentChain != "" {
		full = parentChain + ">" + childName
	}
	if rng, ok := r.bestChainMatch(full); ok {
		return rng, true
	}
	return "", false
}

// bestChainMatch finds the longest suffix-matching chain key whose final
// segment is the leaf (childName), since an override chain
// "parent>child>...>leaf" matches whenever leaf equals the queried name
// regardless of how much of the ancestor chain was specified.
func (r *Resolver) bestChainMatch(full string) (string, bool) {
	segments := strings.Split(full, ">")
	leaf := segments[len(segments)-1]

	var best string
	bestLen := -1
	for key, rng := range r.chains {
		keySegs := strings.Split(key, ">")
		if keySegs[len(keySegs)-1] != leaf {
			continue
		}
		if chainSuffixMatches(segments, keySegs) && len(keySegs) > bestLen {
			best = rng
			bestLen = len(keySegs)
		}
	}
	return best, bestLen >= 0
}

// chainSuffixMatches reports whether keySegs appears, in order, as a
// (not necessarily contiguous) subsequence ending at the same leaf within
// fullSegs — matching npm's "chain is an ancestor path" semantics without
// requiring every intermediate ancestor to be named.
func chainSuffixMatches(fullSegs, keySegs []string) bool {
	fi := len(fullSegs) - 1
	for ki := len(keySegs) - 1; ki >= 0; ki-- {
		found := false
		for ; fi >= 0; fi-- {
			if fullSegs[fi] == keySegs[ki] {
				found = true
				fi--
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
