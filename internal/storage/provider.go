// Package storage defines the interface for the content store.
// This abstraction keeps the pipeline independent of a specific backend
// (Google Cloud Storage, S3-compatible stores such as Cloudflare R2, or the
// local filesystem). The content store is append-only: objects are written
// once and read back for dedup reuse and audits, never mutated.
package storage

import (
	"context"
	"fmt"

	gstorage "cloud.google.com/go/storage"

	"github.com/recourt/ingest/internal/config"
	"github.com/recourt/ingest/internal/storage/gcs"
	"github.com/recourt/ingest/internal/storage/local"
	"github.com/recourt/ingest/internal/storage/memory"
	"github.com/recourt/ingest/internal/storage/s3"
)

// BlobStore is the common interface for the content store.
type BlobStore interface {
	// PutObject persists data under the given key and returns a backend URI.
	PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error)

	// GetObject reads back the object stored under key.
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// NewFromConfig builds the configured blob store backend.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Provider {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:          cfg.Bucket,
			Endpoint:        cfg.Endpoint,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	case "local":
		return local.New(local.Config{BaseDir: cfg.BaseDir})
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}
