package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore keeps file bytes on the local filesystem.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (s *LocalStore) Save(ctx context.Context, data []byte, originalName string) (string, error) {
	path := filepath.Join(s.basePath, newObjectName(originalName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

func (s *LocalStore) Read(ctx context.Context, storagePath string) ([]byte, error) {
	data, err := os.ReadFile(storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Delete(ctx context.Context, storagePath string) error {
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
