package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureStore keeps file bytes in an Azure Blob container. Storage paths are
// blob names within the configured container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore builds a client from a connection string.
func NewAzureStore(connectionString, container string) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure blob client: %w", err)
	}
	return &AzureStore{client: client, container: container}, nil
}

func (s *AzureStore) Save(ctx context.Context, data []byte, originalName string) (string, error) {
	name := newObjectName(originalName)
	if _, err := s.client.UploadBuffer(ctx, s.container, name, data, nil); err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	return name, nil
}

func (s *AzureStore) Read(ctx context.Context, storagePath string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, storagePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob body: %w", err)
	}
	return data, nil
}

func (s *AzureStore) Delete(ctx context.Context, storagePath string) error {
	if _, err := s.client.DeleteBlob(ctx, s.container, storagePath, nil); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
