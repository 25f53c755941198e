package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// InvalidRangeError is returned when a range specifier cannot be parsed.
type InvalidRangeError struct {
	Input string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range: %q", e.Input)
}

type comparatorOp int

const (
	opEQ comparatorOp = iota
	opGT
	opGTE
	opLT
	opLTE
)

type comparator struct {
	op      comparatorOp
	version Version
}

func (c comparator) satisfiedBy(v Version) bool {
	cmp := Compare(v, c.version)
	switch c.op {
	case opEQ:
		return cmp == 0
	case opGT:
		return cmp > 0
	case opGTE:
		return cmp >= 0
	case opLT:
		return cmp < 0
	case opLTE:
		return cmp <= 0
	default:
		return false
	}
}

// Range is an AND-set of comparators; a version satisfies a Range iff it
// satisfies every comparator in the set. An empty set always matches.
type Range struct {
	comparators []comparator
	any         bool
}

// ParseRange parses a single range clause: `^X.Y.Z`, `~X.Y.Z`, `*`/`x`/``,
// `op V`, `A - B`, or whitespace-separated comparators (AND). For npm
// transitional compatibility, `latest` is also accepted and matches every
// version (so Max picks the highest), and a bare version string is treated
// as an exact-match single-version spec.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)

	if s == "" || s == "*" || s == "x" || s == "X" || s == "latest" {
		return Range{any: true}, nil
	}

	if strings.Contains(s, " - ") {
		return parseHyphenRange(s)
	}

	if strings.HasPrefix(s, "^") {
		return parseCaretRange(s[1:])
	}

	if strings.HasPrefix(s, "~") {
		return parseTildeRange(s[1:])
	}

	// whitespace-separated comparators (AND); also covers a single `op V`
	// clause and a bare exact version.
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Range{any: true}, nil
	}

	var comparators []comparator
	for _, f := range fields {
		c, err := parseComparator(f)
		if err != nil {
			return Range{}, &InvalidRangeError{s}
		}
		comparators = append(comparators, c)
	}
	return Range{comparators: comparators}, nil
}

func parseComparator(s string) (comparator, error) {
	op := opEQ
	rest := s
	switch {
	case strings.HasPrefix(s, ">="):
		op, rest = opGTE, s[2:]
	case strings.HasPrefix(s, "<="):
		op, rest = opLTE, s[2:]
	case strings.HasPrefix(s, ">"):
		op, rest = opGT, s[1:]
	case strings.HasPrefix(s, "<"):
		op, rest = opLT, s[1:]
	case strings.HasPrefix(s, "="):
		op, rest = opEQ, s[1:]
	}

	v, err := parseLoose(rest)
	if err != nil {
		return comparator{}, err
	}
	return comparator{op: op, version: v}, nil
}

// parseLoose fills in missing minor/patch components with 0, so that
// partial versions like `1` or `1.2` used as comparator operands behave as
// node-semver expects.
func parseLoose(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, &InvalidRangeError{s}
	}
	parts := strings.SplitN(s, ".", 3)
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return Parse(strings.Join(parts, "."))
}

func parseXRangeTuple(s string) (major int64, minor int64, patch int64, err error) {
	parts := strings.SplitN(s, ".", 3)
	nums := []int64{-1, -1, -1}
	for i := 0; i < len(parts) && i < 3; i++ {
		p := parts[i]
		if p == "x" || p == "X" || p == "*" || p == "" {
			break
		}
		n, perr := strconv.ParseInt(p, 10, 64)
		if perr != nil {
			return 0, 0, 0, &InvalidRangeError{s}
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

func parseCaretRange(rest string) (Range, error) {
	// A prerelease tag on the operand stays on the lower bound, so that
	// prereleases of that same X.Y.Z satisfy the range (see Satisfies).
	var pre string
	if i := strings.IndexByte(rest, '-'); i != -1 {
		rest, pre = rest[:i], rest[i+1:]
	}
	major, minor, patch, err := parseXRangeTuple(rest)
	if err != nil {
		return Range{}, err
	}
	if major == -1 {
		return Range{any: true}, nil
	}
	if minor == -1 {
		minor, patch = 0, 0
	} else if patch == -1 {
		patch = 0
	}

	lower := Version{Major: uint64(major), Minor: uint64(minor), Patch: uint64(patch), Prerelease: pre}

	var upper Version
	switch {
	case major > 0:
		upper = Version{Major: uint64(major) + 1}
	case minor > 0:
		upper = Version{Minor: uint64(minor) + 1}
	default:
		upper = Version{Patch: uint64(patch) + 1}
	}

	return Range{comparators: []comparator{
		{op: opGTE, version: lower},
		{op: opLT, version: upper},
	}}, nil
}

func parseTildeRange(rest string) (Range, error) {
	major, minor, patch, err := parseXRangeTuple(rest)
	if err != nil {
		return Range{}, err
	}
	if major == -1 {
		return Range{any: true}, nil
	}
	if minor == -1 {
		minor, patch = 0, 0
		return Range{comparators: []comparator{
			{op: opGTE, version: Version{Major: uint64(major)}},
			{op: opLT, version: Version{Major: uint64(major) + 1}},
		}}, nil
	}
	if patch == -1 {
		patch = 0
	}

	lower := Version{Major: uint64(major), Minor: uint64(minor), Patch: uint64(patch)}
	upper := Version{Major: uint64(major), Minor: uint64(minor) + 1}

	return Range{comparators: []comparator{
		{op: opGTE, version: lower},
		{op: opLT, version: upper},
	}}, nil
}

func parseHyphenRange(s string) (Range, error) {
	parts := strings.SplitN(s, " - ", 2)
	if len(parts) != 2 {
		return Range{}, &InvalidRangeError{s}
	}
	lo, err := parseLoose(strings.TrimSpace(parts[0]))
	if err != nil {
		return Range{}, &InvalidRangeError{s}
	}
	hi, err := parseLoose(strings.TrimSpace(parts[1]))
	if err != nil {
		return Range{}, &InvalidRangeError{s}
	}
	return Range{comparators: []comparator{
		{op: opGTE, version: lo},
		{op: opLTE, version: hi},
	}}, nil
}

// Satisfies reports whether v satisfies every comparator in the range. A
// prerelease version only satisfies comparators whose own operand shares
// the same major.minor.patch tuple, following node-semver's "prerelease
// tag only matches its own release line" convention.
func (r Range) Satisfies(v Version) bool {
	if r.any {
		return true
	}
	if v.Prerelease != "" && !r.allowsPrereleaseOf(v) {
		return false
	}
	for _, c := range r.comparators {
		if !c.satisfiedBy(v) {
			return false
		}
	}
	return true
}

func (r Range) allowsPrereleaseOf(v Version) bool {
	for _, c := range r.comparators {
		if c.version.Prerelease != "" &&
			c.version.Major == v.Major && c.version.Minor == v.Minor && c.version.Patch == v.Patch {
			return true
		}
	}
	return false
}

// String is mostly useful for debugging/error messages.
func (r Range) String() string {
	if r.any {
		return "*"
	}
	parts := make([]string, len(r.comparators))
	ops := map[comparatorOp]string{opEQ: "=", opGT: ">", opGTE: ">=", opLT: "<", opLTE: "<="}
	for i, c := range r.comparators {
		parts[i] = ops[c.op] + c.version.String()
	}
	return strings.Join(parts, " ")
}

// Max returns the highest version in candidates that satisfies the range,
// along with whether any candidate satisfied it.
func (r Range) Max(candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, v := range candidates {
		if !r.Satisfies(v) {
			continue
		}
		if !found || LessThan(best, v) {
			best = v
			found = true
		}
	}
	return best, found
}

// IsExact reports whether s looks like a bare version rather than a range
// operator expression — used by the resolver to skip `versions()` lookups
// for exact pins.
func IsExact(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" || s == "latest" {
		return false
	}
	for _, prefix := range []string{"^", "~", ">", "<", "=", " - "} {
		if strings.Contains(s, prefix) {
			return false
		}
	}
	if strings.ContainsAny(s, "xX") {
		return false
	}
	_, err := Parse(s)
	return err == nil
}
