// Package listing provides the aggregate owning audio, transcript, structured
// API output, and evaluator-run history for the voice-rx flow.
package listing

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"evalforge/pkg/ulid"
)

var ErrNotFound = errors.New("listing not found")

// Source types select the voice-rx pipeline variant.
const (
	SourceTypeUpload = "upload"
	SourceTypeAPI    = "api"
)

// Listing is an evaluation record for one recorded consultation.
type Listing struct {
	ID         ulid.ULID `json:"id" gorm:"type:char(26);primaryKey"`
	AppID      string    `json:"app_id" gorm:"type:varchar(50);not null;index"`
	Title      string    `json:"title" gorm:"type:varchar(500);default:''"`
	Status     string    `json:"status" gorm:"type:varchar(20);default:'draft'"`
	SourceType string    `json:"source_type" gorm:"type:varchar(20);default:'upload'"`

	AudioFile          datatypes.JSONMap `json:"audio_file,omitempty" gorm:"type:jsonb"`
	TranscriptFile     datatypes.JSONMap `json:"transcript_file,omitempty" gorm:"type:jsonb"`
	StructuredJSONFile datatypes.JSONMap `json:"structured_json_file,omitempty" gorm:"type:jsonb"`
	Transcript         datatypes.JSONMap `json:"transcript,omitempty" gorm:"type:jsonb"`
	APIResponse        datatypes.JSONMap `json:"api_response,omitempty" gorm:"type:jsonb"`
	AIEval             datatypes.JSONMap `json:"ai_eval,omitempty" gorm:"type:jsonb"`
	EvaluatorRuns      datatypes.JSON    `json:"evaluator_runs,omitempty" gorm:"type:jsonb;default:'[]'"`
	Tags               datatypes.JSON    `json:"tags,omitempty" gorm:"type:jsonb;default:'[]'"`

	UserID    string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;autoUpdateTime;index"`
}

func (Listing) TableName() string {
	return "listings"
}

// New creates a draft listing.
func New(appID, title string) *Listing {
	now := time.Now()
	return &Listing{
		ID:         ulid.New(),
		AppID:      appID,
		Title:      title,
		Status:     "draft",
		SourceType: SourceTypeUpload,
		UserID:     "default",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Repository is the persistence port for listings.
type Repository interface {
	Create(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id ulid.ULID) (*Listing, error)
	List(ctx context.Context, appID string, limit, offset int) ([]*Listing, int64, error)
	Update(ctx context.Context, l *Listing) error
	UpdateFields(ctx context.Context, id ulid.ULID, fields map[string]interface{}) error
	// AppendEvaluatorRun appends one run record to evaluator_runs.
	AppendEvaluatorRun(ctx context.Context, id ulid.ULID, run map[string]interface{}) error
	Delete(ctx context.Context, id ulid.ULID) error
}
