package storage

import (
	"context"
	"sync"
)

// MemStore is an in-memory TextStore for tests and dry runs. It assigns the
// same addresses as FileStore.
type MemStore struct {
	mu    sync.RWMutex
	pages map[Address]string
}

var _ TextStore = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{pages: make(map[Address]string)}
}

// Put stores text at its derived address.
func (m *MemStore) Put(ctx context.Context, text string) (Address, error) {
	if err := ctx.Err(); err != nil {
		return Address{}, err
	}
	if err := ValidateText(text, MaxPageSize); err != nil {
		return Address{}, err
	}
	addr := DeriveAddress(text)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[addr] = text
	return addr, nil
}

// Get returns the page text at addr.
func (m *MemStore) Get(ctx context.Context, addr Address) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	text, ok := m.pages[addr]
	if !ok {
		return "", ErrNotFound
	}
	return text, nil
}

// Set overwrites the page at addr. Tests use it to simulate store corruption.
func (m *MemStore) Set(addr Address, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[addr] = text
}

// Len returns the number of stored pages.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pages)
}
