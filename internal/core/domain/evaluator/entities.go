// Package evaluator provides user-defined evaluator definitions: a prompt
// with {{variable}} placeholders plus a visual output field list the schema
// generator turns into a strict JSON schema.
package evaluator

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"evalforge/pkg/ulid"
)

var ErrNotFound = errors.New("evaluator not found")

// OutputField is one entry of the visual output schema builder.
type OutputField struct {
	Key             string                 `json:"key" yaml:"key"`
	Type            string                 `json:"type" yaml:"type"` // number | text | boolean | array
	Description     string                 `json:"description,omitempty" yaml:"description"`
	ArrayItemSchema map[string]interface{} `json:"arrayItemSchema,omitempty" yaml:"arrayItemSchema"`
	Thresholds      map[string]interface{} `json:"thresholds,omitempty" yaml:"thresholds"`
	DisplayMode     string                 `json:"displayMode,omitempty" yaml:"displayMode"`
	IsMainMetric    bool                   `json:"isMainMetric,omitempty" yaml:"isMainMetric"`
}

// Evaluator is a user-defined LLM evaluator.
type Evaluator struct {
	ID           ulid.ULID      `json:"id" gorm:"type:char(26);primaryKey"`
	AppID        string         `json:"app_id" gorm:"type:varchar(50);not null;index"`
	ListingID    *ulid.ULID     `json:"listing_id,omitempty" gorm:"type:char(26)"`
	Name         string         `json:"name" gorm:"type:varchar(200);not null"`
	Prompt       string         `json:"prompt" gorm:"type:text;not null"`
	ModelID      *string        `json:"model_id,omitempty" gorm:"type:varchar(100)"`
	OutputSchema datatypes.JSON `json:"output_schema" gorm:"type:jsonb;default:'[]'"`
	IsGlobal     bool           `json:"is_global" gorm:"default:false"`
	ShowInHeader bool           `json:"show_in_header" gorm:"default:false"`
	ForkedFrom   *ulid.ULID     `json:"forked_from,omitempty" gorm:"type:char(26)"`

	UserID    string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;autoUpdateTime"`
}

func (Evaluator) TableName() string {
	return "evaluators"
}

// New creates an evaluator definition.
func New(appID, name, prompt string) *Evaluator {
	now := time.Now()
	return &Evaluator{
		ID:        ulid.New(),
		AppID:     appID,
		Name:      name,
		Prompt:    prompt,
		UserID:    "default",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Fields decodes the output schema column into typed fields.
func (e *Evaluator) Fields() ([]OutputField, error) {
	if len(e.OutputSchema) == 0 {
		return nil, nil
	}
	var fields []OutputField
	if err := decodeJSON(e.OutputSchema, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Repository is the persistence port for evaluators.
type Repository interface {
	Create(ctx context.Context, e *Evaluator) error
	GetByID(ctx context.Context, id ulid.ULID) (*Evaluator, error)
	List(ctx context.Context, appID string, limit, offset int) ([]*Evaluator, int64, error)
	Update(ctx context.Context, e *Evaluator) error
	Delete(ctx context.Context, id ulid.ULID) error
}
