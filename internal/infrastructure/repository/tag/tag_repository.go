package tag

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"evalforge/internal/core/domain/tag"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, appID string) ([]*tag.Tag, error) {
	var tags []*tag.Tag
	query := r.db.WithContext(ctx).Model(&tag.Tag{})
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	result := query.Order("count DESC, name ASC").Find(&tags)
	return tags, result.Error
}

func (r *Repository) Touch(ctx context.Context, appID, name string) (*tag.Tag, error) {
	var t tag.Tag
	err := r.db.WithContext(ctx).
		Where("app_id = ? AND name = ?", appID, name).First(&t).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		t = tag.Tag{AppID: appID, Name: name, Count: 1, LastUsed: time.Now(), UserID: "default"}
		if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
			return nil, err
		}
		return &t, nil
	}

	t.Count++
	t.LastUsed = time.Now()
	if err := r.db.WithContext(ctx).Save(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) Delete(ctx context.Context, appID, name string) error {
	result := r.db.WithContext(ctx).
		Where("app_id = ? AND name = ?", appID, name).
		Delete(&tag.Tag{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tag.ErrNotFound
	}
	return nil
}
