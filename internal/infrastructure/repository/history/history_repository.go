package history

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"evalforge/internal/core/domain/history"
	"evalforge/pkg/ulid"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, e *history.Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*history.Entry, error) {
	var e history.Entry
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&e)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, history.ErrNotFound
		}
		return nil, result.Error
	}
	return &e, nil
}

func (r *Repository) List(ctx context.Context, filter history.Filter, limit, offset int) ([]*history.Entry, int64, error) {
	var entries []*history.Entry
	var total int64

	query := r.db.WithContext(ctx).Model(&history.Entry{})
	if filter.AppID != nil {
		query = query.Where("app_id = ?", *filter.AppID)
	}
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.SourceType != nil {
		query = query.Where("source_type = ?", *filter.SourceType)
	}
	if filter.SourceID != nil {
		query = query.Where("source_id = ?", *filter.SourceID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&entries)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return entries, total, nil
}

func (r *Repository) Delete(ctx context.Context, id ulid.ULID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&history.Entry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return history.ErrNotFound
	}
	return nil
}
