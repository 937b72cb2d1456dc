package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libbabel-go/metadata"
	"github.com/bitfsorg/libbabel-go/storage"
)

func tempCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sub", FileName))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testRecord(t *testing.T, name string) *metadata.FileRecord {
	t.Helper()
	data := []byte("contents of " + name)
	chunks, err := storage.SplitIntoChunks(data, 8)
	require.NoError(t, err)
	return metadata.New(name, int64(len(data)), storage.ComputeDigest(data), chunks)
}

func TestPutGet(t *testing.T) {
	c := tempCatalog(t)
	rec := testRecord(t, "a.txt")
	rec.Signature = "c2ln"
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	e := NewEntry(rec, "/tmp/a.txt.meta.gz", at)
	require.NoError(t, c.Put(e))

	got, err := c.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)
	assert.True(t, got.Signed)
	assert.Equal(t, rec.ChunkCount, got.ChunkCount)
	assert.True(t, got.UploadedAt.Equal(at), "sub-second precision survives")
}

func TestGet_Errors(t *testing.T) {
	c := tempCatalog(t)
	_, err := c.Get("")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = c.Get("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = c.Get("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.Put(nil), ErrNilEntry)
}

func TestList_NewestFirst(t *testing.T) {
	c := tempCatalog(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	uploads := []struct {
		name   string
		offset time.Duration
	}{
		{"old", 0},
		{"newest", 2 * time.Hour},
		{"middle", time.Hour},
	}
	for _, u := range uploads {
		require.NoError(t, c.Put(NewEntry(testRecord(t, u.name), "", base.Add(u.offset))))
	}

	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	var names []string
	for _, e := range entries {
		names = append(names, e.Filename)
	}
	assert.Equal(t, []string{"newest", "middle", "old"}, names)
}

func TestPut_ReplacesIndex(t *testing.T) {
	c := tempCatalog(t)
	e := NewEntry(testRecord(t, "x"), "", time.Unix(100, 0))
	require.NoError(t, c.Put(e))

	e.UploadedAt = time.Unix(200, 0).UTC()
	e.Filename = "renamed"
	require.NoError(t, c.Put(e))

	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "renamed", entries[0].Filename)

	n, err := c.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete(t *testing.T) {
	c := tempCatalog(t)
	dir := t.TempDir()
	rec := testRecord(t, "doc.txt")
	metaPath, err := metadata.Save(filepath.Join(dir, "doc.txt.meta"), rec)
	require.NoError(t, err)

	e := NewEntry(rec, metaPath, time.Now())
	require.NoError(t, c.Put(e))

	got, err := c.Delete(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", got.Filename)

	_, err = os.Stat(metaPath)
	assert.True(t, os.IsNotExist(err))
	_, err = c.Get(e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	entries, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = c.Delete(e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_MissingMetadataFile(t *testing.T) {
	c := tempCatalog(t)
	e := NewEntry(testRecord(t, "gone"), filepath.Join(t.TempDir(), "gone.meta.gz"), time.Now())
	require.NoError(t, c.Put(e))
	_, err := c.Delete(e.ID)
	assert.NoError(t, err)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	c, err := Open(path)
	require.NoError(t, err)
	e := NewEntry(testRecord(t, "persist"), "", time.Now())
	require.NoError(t, c.Put(e))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	got, err := c.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, "persist", got.Filename)
}
