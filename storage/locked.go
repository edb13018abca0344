package storage

import (
	"context"
	"sync"
)

// Locked serializes writers and lets readers share access. Each call holds
// the lock only for its own duration.
type Locked struct {
	mu    sync.RWMutex
	inner Store
}

var _ Store = (*Locked)(nil)

func NewLocked(inner Store) *Locked {
	return &Locked{inner: inner}
}

func (l *Locked) Put(ctx context.Context, collection string, key, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Put(ctx, collection, key, value)
}

func (l *Locked) Get(ctx context.Context, collection string, key []byte) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.Get(ctx, collection, key)
}

func (l *Locked) Exists(ctx context.Context, collection string, key []byte) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.Exists(ctx, collection, key)
}

func (l *Locked) Delete(ctx context.Context, collection string, key []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Delete(ctx, collection, key)
}

// ForEach collects the entries under the read lock and runs fn after
// releasing it, so fn may write to the store.
func (l *Locked) ForEach(ctx context.Context, collection string, fn func(key, value []byte) error) error {
	type entry struct{ k, v []byte }
	var entries []entry

	l.mu.RLock()
	err := l.inner.ForEach(ctx, collection, func(k, v []byte) error {
		entries = append(entries, entry{k, v})
		return nil
	})
	l.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}
