// Package integrity computes and verifies Subresource-Integrity-style
// digests (`<algo>-<base64>`) over package tarball streams.
package integrity

import (
	"crypto/sha1" //nolint:gosec // sha1 is a supported legacy integrity algorithm, not used for security here
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"strings"
)

// Algo identifies a supported digest algorithm.
type Algo string

// Supported algorithms, ordered weakest to strongest.
const (
	SHA1   Algo = "sha1"
	SHA256 Algo = "sha256"
	SHA384 Algo = "sha384"
	SHA512 Algo = "sha512"
)

// UnsupportedAlgoError is returned for an algorithm outside the supported set.
type UnsupportedAlgoError struct {
	Algo string
}

func (e *UnsupportedAlgoError) Error() string {
	return fmt.Sprintf("unsupported integrity algorithm: %q", e.Algo)
}

func newHash(algo Algo) (hash.Hash, error) {
	switch algo {
	case SHA1:
		return sha1.New(), nil //nolint:gosec
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, &UnsupportedAlgoError{string(algo)}
	}
}

// seeker is satisfied by any stream this package can rewind after reading,
// e.g. *os.File or *bytes.Reader.
type seeker interface {
	io.Reader
	io.Seeker
}

// Compute hashes stream with algo and returns the self-describing digest
// spec `<algo>-<base64>`. The stream's position is restored before return
// when it implements io.Seeker.
func Compute(stream io.Reader, algo Algo) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	var restore func()
	if s, ok := stream.(seeker); ok {
		pos, err := s.Seek(0, io.SeekCurrent)
		if err == nil {
			restore = func() { _, _ = s.Seek(pos, io.SeekStart) }
		}
	}
	if restore != nil {
		defer restore()
	}

	if _, err := io.Copy(h, stream); err != nil {
		return "", err
	}

	digest := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%s-%s", algo, digest), nil
}

// Verify parses spec as `<algo>-<base64>` and reports whether stream
// matches it. An unknown algorithm or malformed spec yields false rather
// than an error — integrity checks are a boolean gate, never a throw site.
func Verify(stream io.Reader, spec string) bool {
	algo, _, ok := SplitSpec(spec)
	if !ok {
		return false
	}
	computed, err := Compute(stream, algo)
	if err != nil {
		return false
	}
	return computed == spec
}

// SplitSpec parses `<algo>-<base64>` into its algorithm and digest parts.
func SplitSpec(spec string) (algo Algo, digest string, ok bool) {
	i := strings.IndexByte(spec, '-')
	if i <= 0 || i == len(spec)-1 {
		return "", "", false
	}
	a := Algo(spec[:i])
	switch a {
	case SHA1, SHA256, SHA384, SHA512:
		return a, spec[i+1:], true
	default:
		return "", "", false
	}
}
