// Package settings provides the (app_id, key, user_id)-scoped settings
// keyspace. LLM credentials and the adversarial config both live here.
package settings

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
)

var ErrNotFound = errors.New("setting not found")

// Setting is one JSON document in the settings keyspace.
type Setting struct {
	ID        int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	AppID     string            `json:"app_id" gorm:"type:varchar(50);not null;default:'';uniqueIndex:uq_setting,priority:1"`
	Key       string            `json:"key" gorm:"type:varchar(100);not null;uniqueIndex:uq_setting,priority:2"`
	Value     datatypes.JSONMap `json:"value" gorm:"type:jsonb;not null"`
	UserID    string            `json:"user_id" gorm:"type:varchar(100);not null;default:'default';uniqueIndex:uq_setting,priority:3"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null;autoUpdateTime"`
}

func (Setting) TableName() string {
	return "settings"
}

// Repository is the persistence port for settings.
type Repository interface {
	Get(ctx context.Context, appID, key string) (*Setting, error)
	List(ctx context.Context, appID string) ([]*Setting, error)
	// Upsert inserts or replaces the value at (app_id, key, user_id).
	Upsert(ctx context.Context, appID, key string, value map[string]interface{}) error
	Delete(ctx context.Context, appID, key string) error
}
