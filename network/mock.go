package network

import (
	"context"

	"github.com/bitfsorg/libbabel-go/storage"
)

// MockTextStore is a test double for storage.TextStore.
// Both function fields must be set before the corresponding method is called.
type MockTextStore struct {
	PutFn func(ctx context.Context, text string) (storage.Address, error)
	GetFn func(ctx context.Context, addr storage.Address) (string, error)
}

var _ storage.TextStore = (*MockTextStore)(nil)

func (m *MockTextStore) Put(ctx context.Context, text string) (storage.Address, error) {
	return m.PutFn(ctx, text)
}
func (m *MockTextStore) Get(ctx context.Context, addr storage.Address) (string, error) {
	return m.GetFn(ctx, addr)
}
