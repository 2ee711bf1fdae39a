package evaluator

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"evalforge/internal/core/domain/evaluator"
	"evalforge/pkg/ulid"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, e *evaluator.Evaluator) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*evaluator.Evaluator, error) {
	var e evaluator.Evaluator
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&e)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, evaluator.ErrNotFound
		}
		return nil, result.Error
	}
	return &e, nil
}

func (r *Repository) List(ctx context.Context, appID string, limit, offset int) ([]*evaluator.Evaluator, int64, error) {
	var evaluators []*evaluator.Evaluator
	var total int64

	query := r.db.WithContext(ctx).Model(&evaluator.Evaluator{})
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&evaluators)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return evaluators, total, nil
}

func (r *Repository) Update(ctx context.Context, e *evaluator.Evaluator) error {
	return r.db.WithContext(ctx).Save(e).Error
}

func (r *Repository) Delete(ctx context.Context, id ulid.ULID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&evaluator.Evaluator{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return evaluator.ErrNotFound
	}
	return nil
}
