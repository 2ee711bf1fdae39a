package listing

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"evalforge/internal/core/domain/listing"
	"evalforge/pkg/ulid"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, l *listing.Listing) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*listing.Listing, error) {
	var l listing.Listing
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&l)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, listing.ErrNotFound
		}
		return nil, result.Error
	}
	return &l, nil
}

func (r *Repository) List(ctx context.Context, appID string, limit, offset int) ([]*listing.Listing, int64, error) {
	var listings []*listing.Listing
	var total int64

	query := r.db.WithContext(ctx).Model(&listing.Listing{})
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&listings)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return listings, total, nil
}

func (r *Repository) Update(ctx context.Context, l *listing.Listing) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *Repository) UpdateFields(ctx context.Context, id ulid.ULID, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&listing.Listing{}).
		Where("id = ?", id.String()).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return listing.ErrNotFound
	}
	return nil
}

func (r *Repository) AppendEvaluatorRun(ctx context.Context, id ulid.ULID, run map[string]interface{}) error {
	l, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var runs []map[string]interface{}
	if len(l.EvaluatorRuns) > 0 {
		if err := json.Unmarshal(l.EvaluatorRuns, &runs); err != nil {
			runs = nil
		}
	}
	runs = append(runs, run)

	encoded, err := json.Marshal(runs)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&listing.Listing{}).
		Where("id = ?", id.String()).
		Update("evaluator_runs", datatypes.JSON(encoded)).Error
}

func (r *Repository) Delete(ctx context.Context, id ulid.ULID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&listing.Listing{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return listing.ErrNotFound
	}
	return nil
}
