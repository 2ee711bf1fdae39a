// Package storage provides the file-bytes blob store with local-disk,
// Azure Blob, and S3 backends.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"evalforge/internal/config"
	"evalforge/pkg/ulid"
)

// Store reads and writes file bytes by opaque storage path.
type Store interface {
	// Save writes bytes under a fresh name derived from originalName's
	// extension and returns the storage path.
	Save(ctx context.Context, data []byte, originalName string) (string, error)
	Read(ctx context.Context, storagePath string) ([]byte, error)
	Delete(ctx context.Context, storagePath string) error
}

// New builds the configured backend.
func New(cfg *config.Config) (Store, error) {
	switch cfg.BlobStorage.Type {
	case "local":
		return NewLocalStore(cfg.BlobStorage.Path)
	case "azure_blob":
		return NewAzureStore(cfg.BlobStorage.AzureConnectionString, cfg.BlobStorage.AzureContainer)
	case "s3":
		return NewS3Store(context.Background(), cfg.BlobStorage.S3Bucket, cfg.BlobStorage.S3Region, cfg.BlobStorage.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.BlobStorage.Type)
	}
}

// newObjectName derives a unique object name keeping the original extension.
func newObjectName(originalName string) string {
	return ulid.New().String() + filepath.Ext(originalName)
}
