package settings

import (
	"context"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"evalforge/internal/core/domain/settings"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, appID, key string) (*settings.Setting, error) {
	var s settings.Setting
	result := r.db.WithContext(ctx).
		Where("app_id = ? AND key = ?", appID, key).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, settings.ErrNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *Repository) List(ctx context.Context, appID string) ([]*settings.Setting, error) {
	var rows []*settings.Setting
	query := r.db.WithContext(ctx).Model(&settings.Setting{})
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	result := query.Order("key ASC").Find(&rows)
	return rows, result.Error
}

func (r *Repository) Upsert(ctx context.Context, appID, key string, value map[string]interface{}) error {
	row := &settings.Setting{
		AppID:  appID,
		Key:    key,
		Value:  datatypes.JSONMap(value),
		UserID: "default",
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_id"}, {Name: "key"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(row).Error
}

func (r *Repository) Delete(ctx context.Context, appID, key string) error {
	result := r.db.WithContext(ctx).
		Where("app_id = ? AND key = ?", appID, key).
		Delete(&settings.Setting{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return settings.ErrNotFound
	}
	return nil
}
