// Package chat provides chat session and message aggregates for the
// health-chat flow.
package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"evalforge/pkg/ulid"
)

var (
	ErrSessionNotFound = errors.New("chat session not found")
	ErrMessageNotFound = errors.New("chat message not found")
)

// Session is an aggregate owning an ordered chat-message sequence.
type Session struct {
	ID              ulid.ULID      `json:"id" gorm:"type:char(26);primaryKey"`
	AppID           string         `json:"app_id" gorm:"type:varchar(50);not null;index"`
	ExternalUserID  *string        `json:"external_user_id,omitempty" gorm:"type:varchar(100)"`
	ThreadID        *string        `json:"thread_id,omitempty" gorm:"type:varchar(200)"`
	ServerSessionID *string        `json:"server_session_id,omitempty" gorm:"type:varchar(200)"`
	LastResponseID  *string        `json:"last_response_id,omitempty" gorm:"type:varchar(200)"`
	Title           string         `json:"title" gorm:"type:varchar(500);default:'New Chat'"`
	Status          string         `json:"status" gorm:"type:varchar(20);default:'active'"`
	IsFirstMessage  bool           `json:"is_first_message" gorm:"default:true"`
	EvaluatorRuns   datatypes.JSON `json:"evaluator_runs,omitempty" gorm:"type:jsonb;default:'[]'"`

	UserID    string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;autoUpdateTime"`

	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (Session) TableName() string {
	return "chat_sessions"
}

// NewSession creates an active session.
func NewSession(appID string) *Session {
	now := time.Now()
	return &Session{
		ID:             ulid.New(),
		AppID:          appID,
		Title:          "New Chat",
		Status:         "active",
		IsFirstMessage: true,
		UserID:         "default",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Message is one turn in a chat session.
type Message struct {
	ID           ulid.ULID         `json:"id" gorm:"type:char(26);primaryKey"`
	SessionID    ulid.ULID         `json:"session_id" gorm:"type:char(26);not null;index"`
	Role         string            `json:"role" gorm:"type:varchar(20);not null"`
	Content      string            `json:"content" gorm:"type:text;default:''"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty" gorm:"column:metadata;type:jsonb"`
	Status       string            `json:"status" gorm:"type:varchar(20);default:'complete'"`
	ErrorMessage *string           `json:"error_message,omitempty" gorm:"type:text"`
	UserID       string            `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null;autoCreateTime"`
}

func (Message) TableName() string {
	return "chat_messages"
}

// NewMessage creates a complete message in a session.
func NewMessage(sessionID ulid.ULID, role, content string) *Message {
	return &Message{
		ID:        ulid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Status:    "complete",
		UserID:    "default",
		CreatedAt: time.Now(),
	}
}

// Repository is the persistence port for chat sessions and messages.
type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id ulid.ULID) (*Session, error)
	ListSessions(ctx context.Context, appID string, limit, offset int) ([]*Session, int64, error)
	UpdateSession(ctx context.Context, s *Session) error
	AppendEvaluatorRun(ctx context.Context, id ulid.ULID, run map[string]interface{}) error
	DeleteSession(ctx context.Context, id ulid.ULID) error

	CreateMessage(ctx context.Context, m *Message) error
	// ListMessages returns the session's messages in creation order.
	ListMessages(ctx context.Context, sessionID ulid.ULID) ([]*Message, error)
}
