package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bitfsorg/libbabel-go/codec"
)

// Resolver is a TextStore that reads through a local FileStore mirror.
// Put always goes to the remote store. A page written through Put is only
// mirrored once a remote Get returns the same text, so a bad write is never
// cached.
type Resolver struct {
	Remote TextStore  // authoritative store
	Mirror *FileStore // local page cache; nil disables caching

	mu      sync.Mutex
	written map[Address]string // Put text awaiting a matching remote read
}

var _ TextStore = (*Resolver)(nil)

// NewResolver creates a Resolver over remote with an optional mirror.
func NewResolver(remote TextStore, mirror *FileStore) *Resolver {
	return &Resolver{Remote: remote, Mirror: mirror}
}

// Put stores text in the remote store and drops any mirrored copy of the
// returned address. Failing to drop it fails the Put.
func (r *Resolver) Put(ctx context.Context, text string) (Address, error) {
	addr, err := r.Remote.Put(ctx, text)
	if err != nil || r.Mirror == nil {
		return addr, err
	}

	r.mu.Lock()
	if r.written == nil {
		r.written = make(map[Address]string)
	}
	r.written[addr] = text
	r.mu.Unlock()

	// A stale mirror entry must not answer the verification read.
	if err := r.Forget(addr); err != nil {
		return Address{}, fmt.Errorf("resolver: drop stale mirror page %s: %w", addr, err)
	}
	return addr, nil
}

// Get retrieves a page, trying sources in order:
//  1. Local mirror
//  2. Remote store (result is mirrored locally, best effort)
func (r *Resolver) Get(ctx context.Context, addr Address) (string, error) {
	if r.Mirror != nil {
		text, err := r.Mirror.Get(ctx, addr)
		if err == nil {
			return text, nil
		}
		// Only continue if not cached; other errors are real failures.
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("resolver: mirror: %w", err)
		}
	}

	text, err := r.Remote.Get(ctx, addr)
	if err != nil {
		return "", err
	}
	if r.Mirror != nil && text != "" && r.confirm(addr, text) {
		_ = r.Mirror.Store(addr, text) // best-effort cache
	}
	return text, nil
}

// confirm reports whether text read from addr may be mirrored.
func (r *Resolver) confirm(addr Address, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	want, pending := r.written[addr]
	if !pending {
		return true
	}
	if !strings.HasPrefix(codec.StripLineBreaks(text), want) {
		return false
	}
	delete(r.written, addr)
	return true
}

// Forget drops a mirrored page so the next Get goes to the remote store.
func (r *Resolver) Forget(addr Address) error {
	if r.Mirror == nil {
		return nil
	}
	err := r.Mirror.Delete(addr)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
