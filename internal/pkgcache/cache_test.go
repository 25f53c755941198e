package pkgcache

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"testing/iotest"
	"time"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, hclog.NewNullLogger())

	assert.Assert(t, !c.Exists("react", "18.2.0", "sha512-abc"))

	assert.NilError(t, c.Put("react", "18.2.0", "sha512-abc", bytes.NewReader([]byte("tarball-bytes"))))
	assert.Assert(t, c.Exists("react", "18.2.0", "sha512-abc"))

	rc, err := c.Get("react", "18.2.0", "sha512-abc")
	assert.NilError(t, err)
	assert.Assert(t, rc != nil)
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "tarball-bytes")
}

func TestGetMissIsNilNotError(t *testing.T) {
	c := New(t.TempDir(), hclog.NewNullLogger())
	rc, err := c.Get("nope", "1.0.0", "sha512-xyz")
	assert.NilError(t, err)
	assert.Assert(t, rc == nil)
}

func TestGetBumpsLastAccessedAtNotCachedAt(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, hclog.NewNullLogger())
	assert.NilError(t, c.Put("lodash", "4.17.21", "sha512-def", bytes.NewReader([]byte("x"))))

	list, err := c.List()
	assert.NilError(t, err)
	assert.Equal(t, len(list), 1)
	originalCachedAt := list[0].CachedAt

	// Force a visible clock delta before the read bumps last_accessed_at.
	now = func() time.Time { return originalCachedAt.Add(time.Hour) }
	defer func() { now = time.Now }()

	rc, err := c.Get("lodash", "4.17.21", "sha512-def")
	assert.NilError(t, err)
	_ = rc.Close()

	list, err = c.List()
	assert.NilError(t, err)
	assert.Equal(t, len(list), 1)
	assert.Equal(t, list[0].CachedAt, originalCachedAt)
	assert.Assert(t, list[0].LastAccessedAt.After(originalCachedAt))
}

func TestPutCrashConsistency(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, hclog.NewNullLogger())

	// A stream that fails during the copy leaves neither file behind.
	err := c.Put("broken", "1.0.0", "sha512-bad", iotest.ErrReader(errors.New("stream failed mid-copy")))
	assert.Assert(t, err != nil)
	assert.Assert(t, !c.Exists("broken", "1.0.0", "sha512-bad"))

	tgz, meta := c.paths("broken", "1.0.0", "sha512-bad")
	assert.NilError(t, writeMetadata(meta, Metadata{Name: "broken"}))
	_ = tgz // metadata alone, no tarball: Exists must require both

	assert.Assert(t, !c.Exists("broken", "1.0.0", "sha512-bad"))
}

func TestSizeSumsTarballs(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, hclog.NewNullLogger())
	assert.NilError(t, c.Put("a", "1.0.0", "sha512-1", bytes.NewReader(make([]byte, 10))))
	assert.NilError(t, c.Put("b", "1.0.0", "sha512-2", bytes.NewReader(make([]byte, 20))))

	size, err := c.Size()
	assert.NilError(t, err)
	assert.Equal(t, size, int64(30))
}

func TestClearRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, hclog.NewNullLogger())
	assert.NilError(t, c.Put("a", "1.0.0", "sha512-1", bytes.NewReader([]byte("x"))))
	assert.NilError(t, c.Clear())

	list, err := c.List()
	assert.NilError(t, err)
	assert.Equal(t, len(list), 0)
	assert.Assert(t, !c.Exists("a", "1.0.0", "sha512-1"))
}

func TestListSkipsUnparsableMetadata(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, hclog.NewNullLogger())
	assert.NilError(t, c.Put("a", "1.0.0", "sha512-1", bytes.NewReader([]byte("x"))))

	_, metaPath := c.paths("a", "1.0.0", "sha512-1")
	assert.NilError(t, os.WriteFile(metaPath, []byte("{not json"), 0o644))

	list, err := c.List()
	assert.NilError(t, err)
	assert.Equal(t, len(list), 0)
}
