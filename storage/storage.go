package storage

import (
	"context"
	"errors"
)

// Collections used by the server.
const (
	CollectionUsers       = "users"
	CollectionChallenges  = "challenges"
	CollectionTranscripts = "transcripts"
	CollectionSessions    = "sessions"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrStoreFailure = errors.New("store failure")
)

// Store is a namespaced byte key-value store. Implementations must be safe
// for concurrent use, or be wrapped with NewLocked.
type Store interface {
	Put(ctx context.Context, collection string, key, value []byte) error
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, collection string, key []byte) ([]byte, error)
	Exists(ctx context.Context, collection string, key []byte) (bool, error)
	// Delete returns ErrNotFound when the key is absent, so a successful
	// Delete claims the record for the caller.
	Delete(ctx context.Context, collection string, key []byte) error
	// ForEach visits every entry of a collection. Returning an error from fn
	// stops the iteration and is returned.
	ForEach(ctx context.Context, collection string, fn func(key, value []byte) error) error
}

// Provider is the process-wide store, set up by InitStore.
var Provider Store
