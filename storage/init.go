package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/84adam/zkauth/config"
	"github.com/84adam/zkauth/logging"
)

// Backend names accepted in Storage.Backend.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendS3     = "s3"
)

// InitStore builds the configured backend, sets Provider and returns it.
// db is required for the sql backend only.
func InitStore(ctx context.Context, cfg *config.Config, db *sql.DB) (Store, error) {
	var store Store

	switch cfg.Storage.Backend {
	case BackendMemory, "":
		store = NewMemoryStore()
	case BackendSQL:
		if db == nil {
			return nil, fmt.Errorf("sql storage requires an open database")
		}
		store = NewSQLStore(db)
	case BackendS3:
		s3Store, err := NewS3Store(ctx, S3Options{
			Endpoint:     cfg.Storage.S3Endpoint,
			Region:       cfg.Storage.S3Region,
			AccessKey:    cfg.Storage.S3AccessKey,
			SecretKey:    cfg.Storage.S3SecretKey,
			Bucket:       cfg.Storage.S3Bucket,
			Prefix:       cfg.Storage.S3Prefix,
			UsePathStyle: cfg.Storage.S3ForcePathStyle,
		})
		if err != nil {
			return nil, err
		}
		s3Store.EnsureBucket(ctx)
		store = NewLocked(s3Store)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	logging.InfoLogger.Printf("Storage backend initialized: %s", cfg.Storage.Backend)
	Provider = store
	return store, nil
}
