// Package pkgcache implements the tarball cache: compressed package
// archives are kept once, keyed by (name, version, integrity), alongside
// metadata tracking last access time.
package pkgcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// IOError wraps a failed cache operation.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("cache: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Metadata is the JSON sidecar stored next to a cached tarball.
type Metadata struct {
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	Integrity      string    `json:"integrity"`
	CachedAt       time.Time `json:"cached_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Size           int64     `json:"size"`
}

// CachedPackage is a Metadata entry returned by List.
type CachedPackage = Metadata

// Cache is the tarball cache rooted at Dir.
type Cache struct {
	Dir    string
	Logger hclog.Logger
}

// New constructs a Cache rooted at dir.
func New(dir string, logger hclog.Logger) *Cache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cache{Dir: dir, Logger: logger.Named("cache")}
}

// key is sha256_hex(lowercase("name@version#integrity")).
func key(name, version, integrity string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(fmt.Sprintf("%s@%s#%s", name, version, integrity))))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) paths(name, version, integrity string) (tgz, meta string) {
	h := key(name, version, integrity)
	dir := filepath.Join(c.Dir, h[0:2], h[2:4])
	return filepath.Join(dir, h+".tgz"), filepath.Join(dir, h+".metadata.json")
}

// Exists reports whether both the tarball and its metadata are present.
func (c *Cache) Exists(name, version, integrity string) bool {
	tgz, meta := c.paths(name, version, integrity)
	return fileExists(tgz) && fileExists(meta)
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Get opens the cached tarball read-only and bumps last_accessed_at. It
// returns (nil, nil) on a miss.
func (c *Cache) Get(name, version, integrity string) (io.ReadCloser, error) {
	if !c.Exists(name, version, integrity) {
		return nil, nil
	}
	tgz, metaPath := c.paths(name, version, integrity)

	f, err := os.Open(tgz)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{"get:open", err}
	}

	if md, err := readMetadata(metaPath); err == nil {
		md.LastAccessedAt = now()
		_ = writeMetadata(metaPath, md)
	}

	return f, nil
}

// Put writes the tarball read from r and its metadata, crash-consistently:
// the tarball is written to a `.tmp` file and atomically renamed before
// the metadata file is written, so a reader can never observe a tarball
// without metadata (or vice versa via Exists, which requires both).
func (c *Cache) Put(name, version, integrity string, r io.Reader) (err error) {
	tgz, metaPath := c.paths(name, version, integrity)
	if err := os.MkdirAll(filepath.Dir(tgz), 0o755); err != nil {
		return &IOError{"put:mkdir", err}
	}

	tmp := tgz + ".tmp"
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
			_ = os.Remove(tgz)
			_ = os.Remove(metaPath)
		}
	}()

	f, err := os.Create(tmp)
	if err != nil {
		return &IOError{"put:create", err}
	}
	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return &IOError{"put:write", copyErr}
	}
	if closeErr != nil {
		return &IOError{"put:close", closeErr}
	}

	if err := os.Rename(tmp, tgz); err != nil {
		return &IOError{"put:rename", err}
	}

	md := Metadata{
		Name:           name,
		Version:        version,
		Integrity:      integrity,
		CachedAt:       now(),
		LastAccessedAt: now(),
		Size:           size,
	}
	if err := writeMetadata(metaPath, md); err != nil {
		return &IOError{"put:metadata", err}
	}
	return nil
}

// Size returns the total number of bytes occupied by cached tarballs.
func (c *Cache) Size() (int64, error) {
	var total int64
	err := filepath.Walk(c.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".tgz") {
			total += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, &IOError{"size", err}
	}
	return total, nil
}

// Clear removes every cached tarball and its metadata.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.Dir); err != nil {
		return &IOError{"clear", err}
	}
	return nil
}

// List returns every cached package's metadata. Entries whose metadata
// file fails to parse are skipped rather than aborting the whole listing.
func (c *Cache) List() ([]CachedPackage, error) {
	var out []CachedPackage
	err := filepath.Walk(c.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort listing, skip unreadable entries
		}
		if info.IsDir() || !strings.HasSuffix(path, ".metadata.json") {
			return nil
		}
		md, err := readMetadata(path)
		if err != nil {
			c.Logger.Warn("skipping unparsable cache metadata", "path", path, "err", err)
			return nil
		}
		out = append(out, md)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, &IOError{"list", err}
	}
	return out, nil
}

func readMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, errors.Wrap(err, "reading cache metadata")
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, errors.Wrap(err, "decoding cache metadata")
	}
	return md, nil
}

func writeMetadata(path string, md Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var now = time.Now
