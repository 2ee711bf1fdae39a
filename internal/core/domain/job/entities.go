// Package job provides the background job queue domain model.
package job

import (
	"time"

	"gorm.io/datatypes"

	"evalforge/pkg/ulid"
)

// Type identifies which handler processes a job.
type Type string

const (
	TypeEvaluateBatch       Type = "evaluate-batch"
	TypeEvaluateAdversarial Type = "evaluate-adversarial"
	TypeEvaluateCustom      Type = "evaluate-custom"
	TypeEvaluateCustomBatch Type = "evaluate-custom-batch"
	TypeEvaluateVoiceRx     Type = "evaluate-voice-rx"
)

// KnownTypes lists every registered job type.
var KnownTypes = []Type{
	TypeEvaluateBatch,
	TypeEvaluateAdversarial,
	TypeEvaluateCustom,
	TypeEvaluateCustomBatch,
	TypeEvaluateVoiceRx,
}

// IsValid reports whether t is a registered job type.
func (t Type) IsValid() bool {
	for _, known := range KnownTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Status is the job lifecycle state. Transitions are
// queued -> running -> {completed, failed, cancelled} and queued -> cancelled.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Progress is the structured progress payload stored on a job.
type Progress struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	Message     string `json:"message"`
	RunID       string `json:"run_id,omitempty"`
	ListingID   string `json:"listing_id,omitempty"`
	EvaluatorID string `json:"evaluator_id,omitempty"`
}

// ToMap converts Progress to the JSON column representation.
func (p Progress) ToMap() datatypes.JSONMap {
	m := datatypes.JSONMap{
		"current": p.Current,
		"total":   p.Total,
		"message": p.Message,
	}
	if p.RunID != "" {
		m["run_id"] = p.RunID
	}
	if p.ListingID != "" {
		m["listing_id"] = p.ListingID
	}
	if p.EvaluatorID != "" {
		m["evaluator_id"] = p.EvaluatorID
	}
	return m
}

// Job is a unit of background work picked up by the worker.
type Job struct {
	ID           ulid.ULID         `json:"id" gorm:"type:char(26);primaryKey"`
	JobType      Type              `json:"job_type" gorm:"type:varchar(50);not null"`
	Status       Status            `json:"status" gorm:"type:varchar(20);not null;default:'queued';index"`
	Params       datatypes.JSONMap `json:"params" gorm:"type:jsonb;default:'{}'"`
	Progress     datatypes.JSONMap `json:"progress" gorm:"type:jsonb;default:'{}'"`
	Result       datatypes.JSONMap `json:"result,omitempty" gorm:"type:jsonb"`
	ErrorMessage *string           `json:"error_message,omitempty" gorm:"type:text"`
	UserID       string            `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null;autoCreateTime;index"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func (Job) TableName() string {
	return "jobs"
}

// New creates a queued job.
func New(jobType Type, params map[string]interface{}) *Job {
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Job{
		ID:        ulid.New(),
		JobType:   jobType,
		Status:    StatusQueued,
		Params:    datatypes.JSONMap(params),
		Progress:  Progress{}.ToMap(),
		UserID:    "default",
		CreatedAt: time.Now(),
	}
}

// CreateRequest is the POST /api/jobs body.
type CreateRequest struct {
	JobType string                 `json:"jobType" binding:"required"`
	Params  map[string]interface{} `json:"params"`
}

// Response is the API shape of a job. Params are sanitized: the potentially
// huge csv_content value is stripped before serialization.
type Response struct {
	ID           string                 `json:"id"`
	JobType      Type                   `json:"jobType"`
	Status       Status                 `json:"status"`
	Params       map[string]interface{} `json:"params"`
	Progress     map[string]interface{} `json:"progress"`
	Result       map[string]interface{} `json:"result,omitempty"`
	ErrorMessage *string                `json:"errorMessage,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	StartedAt    *time.Time             `json:"startedAt,omitempty"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
}

// ToResponse converts the job to its API shape, stripping csv_content.
func (j *Job) ToResponse() *Response {
	params := make(map[string]interface{}, len(j.Params))
	for k, v := range j.Params {
		if k == "csv_content" {
			continue
		}
		params[k] = v
	}
	return &Response{
		ID:           j.ID.String(),
		JobType:      j.JobType,
		Status:       j.Status,
		Params:       params,
		Progress:     j.Progress,
		Result:       j.Result,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
