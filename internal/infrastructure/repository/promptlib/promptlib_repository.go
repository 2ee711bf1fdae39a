package promptlib

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"evalforge/internal/core/domain/promptlib"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func (r *Repository) CreatePrompt(ctx context.Context, p *promptlib.Prompt) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return promptlib.ErrVersionExists
		}
		return err
	}
	return nil
}

func (r *Repository) GetPrompt(ctx context.Context, id int64) (*promptlib.Prompt, error) {
	var p promptlib.Prompt
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&p)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, promptlib.ErrPromptNotFound
		}
		return nil, result.Error
	}
	return &p, nil
}

func (r *Repository) ListPrompts(ctx context.Context, appID, promptType string) ([]*promptlib.Prompt, error) {
	var prompts []*promptlib.Prompt
	query := r.db.WithContext(ctx).Model(&promptlib.Prompt{})
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	if promptType != "" {
		query = query.Where("prompt_type = ?", promptType)
	}
	result := query.Order("prompt_type ASC, version DESC").Find(&prompts)
	return prompts, result.Error
}

func (r *Repository) FindPromptByName(ctx context.Context, appID, name string) (*promptlib.Prompt, error) {
	var p promptlib.Prompt
	result := r.db.WithContext(ctx).
		Where("app_id = ? AND name = ?", appID, name).First(&p)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, promptlib.ErrPromptNotFound
		}
		return nil, result.Error
	}
	return &p, nil
}

func (r *Repository) UpdatePrompt(ctx context.Context, p *promptlib.Prompt) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *Repository) DeletePrompt(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&promptlib.Prompt{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return promptlib.ErrPromptNotFound
	}
	return nil
}

func (r *Repository) CreateSchema(ctx context.Context, s *promptlib.Schema) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		if isUniqueViolation(err) {
			return promptlib.ErrVersionExists
		}
		return err
	}
	return nil
}

func (r *Repository) GetSchema(ctx context.Context, id int64) (*promptlib.Schema, error) {
	var s promptlib.Schema
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, promptlib.ErrSchemaNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *Repository) ListSchemas(ctx context.Context, appID, promptType string) ([]*promptlib.Schema, error) {
	var schemas []*promptlib.Schema
	query := r.db.WithContext(ctx).Model(&promptlib.Schema{})
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	if promptType != "" {
		query = query.Where("prompt_type = ?", promptType)
	}
	result := query.Order("prompt_type ASC, version DESC").Find(&schemas)
	return schemas, result.Error
}

func (r *Repository) FindSchemaByName(ctx context.Context, appID, name string) (*promptlib.Schema, error) {
	var s promptlib.Schema
	result := r.db.WithContext(ctx).
		Where("app_id = ? AND name = ?", appID, name).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, promptlib.ErrSchemaNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *Repository) UpdateSchema(ctx context.Context, s *promptlib.Schema) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *Repository) DeleteSchema(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&promptlib.Schema{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return promptlib.ErrSchemaNotFound
	}
	return nil
}
