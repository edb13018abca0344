package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// SQLStore keeps collections in the kv_store table of a sqlite3 or rqlite
// database. Keys are stored hex encoded and values as text, which suits the
// JSON records the server writes.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Put(ctx context.Context, collection string, key, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_store (collection, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		collection, hex.EncodeToString(key), string(value), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStoreFailure, collection, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, collection string, key []byte) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_store WHERE collection = ? AND key = ?",
		collection, hex.EncodeToString(key),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreFailure, collection, err)
	}
	return []byte(value), nil
}

func (s *SQLStore) Exists(ctx context.Context, collection string, key []byte) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM kv_store WHERE collection = ? AND key = ?",
		collection, hex.EncodeToString(key),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", ErrStoreFailure, collection, err)
	}
	return count > 0, nil
}

func (s *SQLStore) Delete(ctx context.Context, collection string, key []byte) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM kv_store WHERE collection = ? AND key = ?",
		collection, hex.EncodeToString(key),
	)
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreFailure, collection, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreFailure, collection, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ForEach reads the whole collection before calling fn, so fn may write to
// the same database.
func (s *SQLStore) ForEach(ctx context.Context, collection string, fn func(key, value []byte) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv_store WHERE collection = ? ORDER BY key",
		collection,
	)
	if err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrStoreFailure, collection, err)
	}

	type entry struct{ k, v []byte }
	var entries []entry
	for rows.Next() {
		var hexKey, value string
		if err := rows.Scan(&hexKey, &value); err != nil {
			rows.Close()
			return fmt.Errorf("%w: scan %s: %v", ErrStoreFailure, collection, err)
		}
		k, err := hex.DecodeString(hexKey)
		if err != nil {
			rows.Close()
			return fmt.Errorf("%w: bad key in %s: %v", ErrStoreFailure, collection, err)
		}
		entries = append(entries, entry{k, []byte(value)})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("%w: scan %s: %v", ErrStoreFailure, collection, err)
	}

	for _, e := range entries {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
