package resolver

import "errors"

// ErrWorkspaceNotFound is wrapped when a `workspace:` source or a
// bare-name workspace match doesn't resolve to a discovered workspace.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// ErrNoMatchingVersion is returned when no published version satisfies
// a registry range.
var ErrNoMatchingVersion = errors.New("no matching version")

// InvalidRangeError wraps a range string the semver package rejected.
type InvalidRangeError struct {
	Range string
}

func (e *InvalidRangeError) Error() string {
	return "resolver: invalid range: " + e.Range
}
