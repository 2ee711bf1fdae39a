// Package history provides the audit log for evaluator runs and events.
package history

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"evalforge/pkg/ulid"
)

var ErrNotFound = errors.New("history entry not found")

// Entry is one audit record.
type Entry struct {
	ID            ulid.ULID         `json:"id" gorm:"type:char(26);primaryKey"`
	AppID         string            `json:"app_id" gorm:"type:varchar(50);not null;index:idx_history_app_source,priority:1"`
	EntityType    *string           `json:"entity_type,omitempty" gorm:"type:varchar(50);index:idx_history_entity,priority:1"`
	EntityID      *string           `json:"entity_id,omitempty" gorm:"type:varchar(200);index:idx_history_entity,priority:2"`
	SourceType    string            `json:"source_type" gorm:"type:varchar(50);not null;index:idx_history_source,priority:1;index:idx_history_app_source,priority:2"`
	SourceID      *string           `json:"source_id,omitempty" gorm:"type:varchar(200);index:idx_history_source,priority:2"`
	Status        string            `json:"status" gorm:"type:varchar(20);not null"`
	DurationMs    *float64          `json:"duration_ms,omitempty"`
	Data          datatypes.JSONMap `json:"data,omitempty" gorm:"type:jsonb"`
	TriggeredBy   string            `json:"triggered_by" gorm:"type:varchar(20);default:'manual'"`
	SchemaVersion *string           `json:"schema_version,omitempty" gorm:"type:varchar(20)"`
	UserContext   datatypes.JSONMap `json:"user_context,omitempty" gorm:"type:jsonb"`
	// Timestamp is epoch milliseconds; the composite indexes end on it so
	// per-entity and per-source timelines read in order.
	Timestamp int64  `json:"timestamp" gorm:"not null;index;index:idx_history_entity,priority:3;index:idx_history_source,priority:3;index:idx_history_app_source,priority:3"`
	UserID    string `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
}

func (Entry) TableName() string {
	return "history"
}

// New creates a history entry stamped with the current time.
func New(appID, sourceType, status string) *Entry {
	return &Entry{
		ID:          ulid.New(),
		AppID:       appID,
		SourceType:  sourceType,
		Status:      status,
		TriggeredBy: "manual",
		Timestamp:   time.Now().UnixMilli(),
		UserID:      "default",
	}
}

// Filter narrows history listings.
type Filter struct {
	AppID      *string
	EntityType *string
	EntityID   *string
	SourceType *string
	SourceID   *string
}

// Repository is the persistence port for history entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id ulid.ULID) (*Entry, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Entry, int64, error)
	Delete(ctx context.Context, id ulid.ULID) error
}
