package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store keeps file bytes in an S3 bucket. Storage paths are object keys.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3 client from the default credential chain.
func NewS3Store(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3Store) Save(ctx context.Context, data []byte, originalName string) (string, error) {
	key := path.Join(s.prefix, newObjectName(originalName))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put s3 object: %w", err)
	}
	return key, nil
}

func (s *S3Store) Read(ctx context.Context, storagePath string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &storagePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object body: %w", err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, storagePath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &storagePath,
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3 object: %w", err)
	}
	return nil
}
