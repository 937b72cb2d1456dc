package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a MemStore and counts remote reads.
type countingStore struct {
	*MemStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, addr Address) (string, error) {
	c.gets++
	return c.MemStore.Get(ctx, addr)
}

func TestResolver_GetCachesRemotePage(t *testing.T) {
	remote := &countingStore{MemStore: NewMemStore()}
	mirror := newTestStore(t)
	r := NewResolver(remote, mirror)
	ctx := context.Background()

	addr, err := remote.MemStore.Put(ctx, "remote page")
	require.NoError(t, err)

	text, err := r.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "remote page", text)
	assert.Equal(t, 1, remote.gets)

	text, err = r.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "remote page", text)
	assert.Equal(t, 1, remote.gets, "second read should be served by the mirror")
}

func TestResolver_PutThenVerifyReadsRemote(t *testing.T) {
	remote := &countingStore{MemStore: NewMemStore()}
	mirror := newTestStore(t)
	r := NewResolver(remote, mirror)
	ctx := context.Background()

	addr, err := r.Put(ctx, "written page")
	require.NoError(t, err)

	text, err := r.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "written page", text)
	assert.Equal(t, 1, remote.gets)

	ok, err := mirror.Has(addr)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_MismatchedWriteNotMirrored(t *testing.T) {
	remote := &countingStore{MemStore: NewMemStore()}
	mirror := newTestStore(t)
	r := NewResolver(remote, mirror)
	ctx := context.Background()

	addr, err := r.Put(ctx, "expected page")
	require.NoError(t, err)
	remote.Set(addr, "garbled")

	text, err := r.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "garbled", text)

	ok, err := mirror.Has(addr)
	require.NoError(t, err)
	assert.False(t, ok, "a page that does not match the write must not be cached")
}

func TestResolver_PutDropsStaleMirrorEntry(t *testing.T) {
	remote := NewMemStore()
	mirror := newTestStore(t)
	r := NewResolver(remote, mirror)
	ctx := context.Background()

	addr := DeriveAddress("fresh")
	require.NoError(t, mirror.Store(addr, "stale"))

	_, err := r.Put(ctx, "fresh")
	require.NoError(t, err)

	text, err := r.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "fresh", text)
}

func TestResolver_PutFailsWhenStalePageCannotBeDropped(t *testing.T) {
	remote := NewMemStore()
	mirror := newTestStore(t)
	r := NewResolver(remote, mirror)

	// A non-empty directory at the page path makes removal fail.
	addr := DeriveAddress("pinned")
	path := AddressToPath(mirror.baseDir, addr)
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0700))

	_, err := r.Put(context.Background(), "pinned")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIOFailure)
}

func TestResolver_NoMirror(t *testing.T) {
	remote := NewMemStore()
	r := NewResolver(remote, nil)
	ctx := context.Background()

	addr, err := r.Put(ctx, "no cache")
	require.NoError(t, err)
	text, err := r.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "no cache", text)
	assert.NoError(t, r.Forget(addr))
}

func TestResolver_RemoteError(t *testing.T) {
	r := NewResolver(NewMemStore(), newTestStore(t))
	_, err := r.Get(context.Background(), testAddress(5))
	assert.True(t, errors.Is(err, ErrNotFound))
}
