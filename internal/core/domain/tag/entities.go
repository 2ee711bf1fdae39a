// Package tag provides the tag registry used for autocomplete.
package tag

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("tag not found")

// Tag is one registry row, unique on (app_id, name, user_id).
type Tag struct {
	ID       int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	AppID    string    `json:"app_id" gorm:"type:varchar(50);not null;uniqueIndex:uq_tag,priority:1"`
	Name     string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:uq_tag,priority:2"`
	Count    int       `json:"count" gorm:"default:0"`
	LastUsed time.Time `json:"last_used" gorm:"not null;autoCreateTime"`
	UserID   string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default';uniqueIndex:uq_tag,priority:3"`
}

func (Tag) TableName() string {
	return "tags"
}

// Repository is the persistence port for tags.
type Repository interface {
	List(ctx context.Context, appID string) ([]*Tag, error)
	// Touch increments the tag's usage count, creating it when missing.
	Touch(ctx context.Context, appID, name string) (*Tag, error)
	Delete(ctx context.Context, appID, name string) error
}
