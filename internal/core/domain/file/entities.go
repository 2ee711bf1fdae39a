// Package file provides file metadata records; the bytes live in the blob
// store under storage_path.
package file

import (
	"context"
	"errors"
	"time"

	"evalforge/pkg/ulid"
)

var ErrNotFound = errors.New("file not found")

// Record is one stored file's metadata.
type Record struct {
	ID           ulid.ULID `json:"id" gorm:"type:char(26);primaryKey"`
	OriginalName string    `json:"original_name" gorm:"type:varchar(500);not null"`
	MimeType     *string   `json:"mime_type,omitempty" gorm:"type:varchar(100)"`
	SizeBytes    *int64    `json:"size_bytes,omitempty"`
	StoragePath  string    `json:"storage_path" gorm:"type:varchar(1000);not null"`
	UserID       string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"not null;autoUpdateTime"`
}

func (Record) TableName() string {
	return "files"
}

// New creates a file record.
func New(originalName, storagePath string, mimeType string, sizeBytes int64) *Record {
	now := time.Now()
	r := &Record{
		ID:           ulid.New(),
		OriginalName: originalName,
		StoragePath:  storagePath,
		UserID:       "default",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if mimeType != "" {
		r.MimeType = &mimeType
	}
	if sizeBytes > 0 {
		r.SizeBytes = &sizeBytes
	}
	return r
}

// Repository is the persistence port for file records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id ulid.ULID) (*Record, error)
	Delete(ctx context.Context, id ulid.ULID) error
}
