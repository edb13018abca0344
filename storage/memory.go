package storage

import (
	"bytes"
	"context"
	"sort"
)

// MemoryStore keeps everything in process memory. It is not synchronized;
// NewMemoryStore returns it wrapped in a Locked store.
type MemoryStore struct {
	collections map[string]map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() Store {
	return NewLocked(&MemoryStore{collections: make(map[string]map[string][]byte)})
}

func (m *MemoryStore) Put(ctx context.Context, collection string, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string][]byte)
		m.collections[collection] = c
	}
	c[string(key)] = bytes.Clone(value)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, collection string, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.collections[collection][string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemoryStore) Exists(ctx context.Context, collection string, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := m.collections[collection][string(key)]
	return ok, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection string, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := m.collections[collection]
	if _, ok := c[string(key)]; !ok {
		return ErrNotFound
	}
	delete(c, string(key))
	return nil
}

// ForEach visits keys in sorted order.
func (m *MemoryStore) ForEach(ctx context.Context, collection string, fn func(key, value []byte) error) error {
	c := m.collections[collection]
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn([]byte(k), bytes.Clone(c[k])); err != nil {
			return err
		}
	}
	return nil
}
