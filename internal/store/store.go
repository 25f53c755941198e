// Package store implements the content-addressable store: packages are
// extracted once under a hash of their identity and shared across
// projects via hardlink, symlink or copy. Extraction uses archive/tar and
// compress/gzip directly, the same way the teacher's internal/cacheitem
// package builds its own restore logic on top of archive/tar rather than
// shelling out to a system `tar`.
package store

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// LinkStrategy selects how a store entry is materialised into a project.
type LinkStrategy int

const (
	// LinkAuto tries symlink, then hardlink, then falls back to copy.
	LinkAuto LinkStrategy = iota
	LinkSymlink
	LinkHardlink
	LinkCopy
)

// IOError wraps a failed store operation after best-effort cleanup.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Store is the content-addressable package store rooted at Dir.
type Store struct {
	Dir      string
	Strategy LinkStrategy
	Logger   hclog.Logger
}

// New constructs a Store rooted at dir.
func New(dir string, strategy LinkStrategy, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{Dir: dir, Strategy: strategy, Logger: logger.Named("store")}
}

// hash is sha256_hex(lowercase("name@version")).
func hash(name, version string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(name + "@" + version)))
	return hex.EncodeToString(sum[:])
}

// Path returns the deterministic extraction directory for name@version.
func (s *Store) Path(name, version string) string {
	h := hash(name, version)
	return filepath.Join(s.Dir, h[0:2], h[2:4], h)
}

// Exists reports whether name@version has already been extracted.
func (s *Store) Exists(name, version string) bool {
	info, err := os.Stat(s.Path(name, version))
	return err == nil && info.IsDir()
}

// Add extracts the gzipped tarball read from r into the store under
// name@version. It is idempotent: if the final path already exists, Add
// returns immediately without rewriting it. Extraction happens in a
// `.tmp-<uuid>` staging directory that is renamed into place atomically;
// on any error the staging directory is removed.
func (s *Store) Add(name, version string, r io.Reader) error {
	final := s.Path(name, version)
	if s.Exists(name, version) {
		return nil
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return &IOError{"add:mkdir", err}
	}

	staging := filepath.Join(s.Dir, ".tmp-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return &IOError{"add:mkdir-staging", err}
	}

	if err := extractTarGz(r, staging); err != nil {
		_ = os.RemoveAll(staging)
		return &IOError{"add:extract", err}
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		_ = os.RemoveAll(staging)
		return &IOError{"add:mkdir-final", err}
	}

	if err := os.Rename(staging, final); err != nil {
		// Another goroutine/process may have won the race; that's success.
		if s.Exists(name, version) {
			_ = os.RemoveAll(staging)
			return nil
		}
		_ = os.RemoveAll(staging)
		return &IOError{"add:rename", err}
	}

	s.Logger.Debug("extracted package", "name", name, "version", version, "path", final)
	return nil
}

// Link materialises name@version into target, creating target's parent
// directory as needed. It follows the configured fallback chain:
// symlink -> hardlink -> copy.
func (s *Store) Link(name, version, target string) error {
	src := s.Path(name, version)
	if !s.Exists(name, version) {
		return &IOError{"link", errors.Errorf("no store entry for %s@%s", name, version)}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &IOError{"link:mkdir", err}
	}
	_ = os.RemoveAll(target)

	order := linkOrder(s.Strategy)
	var lastErr error
	for _, strategy := range order {
		var err error
		switch strategy {
		case LinkSymlink:
			err = os.Symlink(src, target)
		case LinkHardlink:
			err = hardlinkTree(src, target)
		case LinkCopy:
			err = copyTree(src, target)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		s.Logger.Debug("link strategy failed, falling back", "strategy", strategy, "err", err)
	}
	return &IOError{"link", lastErr}
}

func linkOrder(strategy LinkStrategy) []LinkStrategy {
	switch strategy {
	case LinkSymlink:
		return []LinkStrategy{LinkSymlink, LinkHardlink, LinkCopy}
	case LinkHardlink:
		return []LinkStrategy{LinkHardlink, LinkCopy}
	case LinkCopy:
		return []LinkStrategy{LinkCopy}
	default:
		return []LinkStrategy{LinkSymlink, LinkHardlink, LinkCopy}
	}
}

// Integrity computes (and memoises in a `.integrity` sidecar file) the
// sha512 of the packaged tarball at <path>/package.tgz, if present.
func (s *Store) Integrity(name, version string) (string, error) {
	dir := s.Path(name, version)
	sidecar := filepath.Join(dir, ".integrity")

	if data, err := os.ReadFile(sidecar); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	tgz := filepath.Join(dir, "package.tgz")
	f, err := os.Open(tgz)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &IOError{"integrity:open", err}
	}
	defer f.Close() //nolint:errcheck

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &IOError{"integrity:hash", err}
	}
	digest := "sha512-" + hexOrB64(h)
	_ = os.WriteFile(sidecar, []byte(digest), 0o644)
	return digest, nil
}

func hexOrB64(h interface{ Sum([]byte) []byte }) string {
	return hex.EncodeToString(h.Sum(nil))
}

// Size returns the total size in bytes of all extracted package trees.
func (s *Store) Size() (int64, error) {
	var total int64
	err := filepath.Walk(s.Dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, &IOError{"size", err}
	}
	return total, nil
}

// Prune removes store entries. Left as an explicit no-op in this initial
// implementation: entries are shared across unrelated projects and safe
// garbage collection requires a reference count this store does not yet
// track.
func (s *Store) Prune() error {
	return nil
}

func extractTarGz(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "opening gzip stream")
	}
	defer gz.Close() //nolint:errcheck

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tar entry")
		}

		name, err := sanitizeTarPath(header.Name)
		if err != nil {
			return err
		}
		stripped, ok := stripTopLevel(name)
		if !ok {
			// Entry has no subdirectory (e.g. the bare "package" root itself);
			// dropped the same way `tar --strip-components=1` drops it.
			continue
		}
		if stripped == "" {
			continue
		}
		target := filepath.Join(dest, stripped)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode(header))
			if err != nil {
				return err
			}
			if _, err := io.CopyN(out, tr, header.Size); err != nil && err != io.EOF {
				out.Close() //nolint:errcheck
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// Symlinks, hardlinks, devices etc. are ignored: irrelevant to
			// the common npm tarball shape and a source of traversal risk.
		}
	}
}

func fileMode(h *tar.Header) os.FileMode {
	mode := os.FileMode(h.Mode) & 0o777
	if mode == 0 {
		mode = 0o644
	}
	return mode
}

// stripTopLevel drops an entry's first path segment, mirroring npm's own
// extraction convention (equivalent to `tar --strip-components=1`) so the
// tarball's customary `package/` root never appears in the extracted
// tree. ok is false for an entry with no subdirectory under that root,
// which the caller drops entirely.
func stripTopLevel(name string) (stripped string, ok bool) {
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return "", false
	}
	return name[idx+1:], true
}

// sanitizeTarPath rejects absolute paths and `..` traversal.
func sanitizeTarPath(name string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", errors.Errorf("tar entry escapes destination: %q", name)
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", errors.Errorf("tar entry escapes destination: %q", name)
		}
	}
	return clean, nil
}
