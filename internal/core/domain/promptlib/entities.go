// Package promptlib provides versioned prompt templates and JSON schemas.
package promptlib

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
)

var (
	ErrPromptNotFound = errors.New("prompt not found")
	ErrSchemaNotFound = errors.New("schema not found")
	ErrVersionExists  = errors.New("version already exists")
)

// Prompt is a versioned LLM prompt template, unique on
// (app_id, prompt_type, version, user_id).
type Prompt struct {
	ID          int64   `json:"id" gorm:"primaryKey;autoIncrement"`
	AppID       string  `json:"app_id" gorm:"type:varchar(50);not null;uniqueIndex:uq_prompt_version,priority:1"`
	PromptType  string  `json:"prompt_type" gorm:"type:varchar(50);not null;uniqueIndex:uq_prompt_version,priority:2"`
	Version     int     `json:"version" gorm:"default:1;uniqueIndex:uq_prompt_version,priority:3"`
	Name        string  `json:"name" gorm:"type:varchar(200);not null"`
	Prompt      string  `json:"prompt" gorm:"type:text;not null"`
	Description string  `json:"description" gorm:"type:text;default:''"`
	IsDefault   bool    `json:"is_default" gorm:"default:false"`
	SourceType  *string `json:"source_type,omitempty" gorm:"type:varchar(20)"`

	UserID    string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default';uniqueIndex:uq_prompt_version,priority:4"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;autoUpdateTime"`
}

func (Prompt) TableName() string {
	return "prompts"
}

// Schema is a versioned JSON schema for structured LLM output, unique on
// (app_id, prompt_type, version, user_id).
type Schema struct {
	ID          int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	AppID       string            `json:"app_id" gorm:"type:varchar(50);not null;uniqueIndex:uq_schema_version,priority:1"`
	PromptType  string            `json:"prompt_type" gorm:"type:varchar(50);not null;uniqueIndex:uq_schema_version,priority:2"`
	Version     int               `json:"version" gorm:"default:1;uniqueIndex:uq_schema_version,priority:3"`
	Name        string            `json:"name" gorm:"type:varchar(200);not null"`
	SchemaData  datatypes.JSONMap `json:"schema_data" gorm:"type:jsonb;not null"`
	Description string            `json:"description" gorm:"type:text;default:''"`
	IsDefault   bool              `json:"is_default" gorm:"default:false"`

	UserID    string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default';uniqueIndex:uq_schema_version,priority:4"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;autoUpdateTime"`
}

func (Schema) TableName() string {
	return "schemas"
}

// Repository is the persistence port for prompts and schemas.
type Repository interface {
	CreatePrompt(ctx context.Context, p *Prompt) error
	GetPrompt(ctx context.Context, id int64) (*Prompt, error)
	ListPrompts(ctx context.Context, appID, promptType string) ([]*Prompt, error)
	// FindPromptByName locates a prompt by app and name, for seeding.
	FindPromptByName(ctx context.Context, appID, name string) (*Prompt, error)
	UpdatePrompt(ctx context.Context, p *Prompt) error
	DeletePrompt(ctx context.Context, id int64) error

	CreateSchema(ctx context.Context, s *Schema) error
	GetSchema(ctx context.Context, id int64) (*Schema, error)
	ListSchemas(ctx context.Context, appID, promptType string) ([]*Schema, error)
	FindSchemaByName(ctx context.Context, appID, name string) (*Schema, error)
	UpdateSchema(ctx context.Context, s *Schema) error
	DeleteSchema(ctx context.Context, id int64) error
}
