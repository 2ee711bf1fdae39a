package file

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"evalforge/internal/core/domain/file"
	"evalforge/pkg/ulid"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, record *file.Record) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*file.Record, error) {
	var record file.Record
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, file.ErrNotFound
		}
		return nil, result.Error
	}
	return &record, nil
}

func (r *Repository) Delete(ctx context.Context, id ulid.ULID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&file.Record{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return file.ErrNotFound
	}
	return nil
}
