package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of Store.
type MockStore struct {
	mock.Mock
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Put(ctx context.Context, collection string, key, value []byte) error {
	args := m.Called(ctx, collection, key, value)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, collection string, key []byte) ([]byte, error) {
	args := m.Called(ctx, collection, key)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *MockStore) Exists(ctx context.Context, collection string, key []byte) (bool, error) {
	args := m.Called(ctx, collection, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, collection string, key []byte) error {
	args := m.Called(ctx, collection, key)
	return args.Error(0)
}

// ForEach does not call fn; tests exercising iteration use MemoryStore.
func (m *MockStore) ForEach(ctx context.Context, collection string, fn func(key, value []byte) error) error {
	args := m.Called(ctx, collection, fn)
	return args.Error(0)
}
