package chat

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"evalforge/internal/core/domain/chat"
	"evalforge/pkg/ulid"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateSession(ctx context.Context, s *chat.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repository) GetSession(ctx context.Context, id ulid.ULID) (*chat.Session, error) {
	var s chat.Session
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&s)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, chat.ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &s, nil
}

func (r *Repository) ListSessions(ctx context.Context, appID string, limit, offset int) ([]*chat.Session, int64, error) {
	var sessions []*chat.Session
	var total int64

	query := r.db.WithContext(ctx).Model(&chat.Session{})
	if appID != "" {
		query = query.Where("app_id = ?", appID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&sessions)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return sessions, total, nil
}

func (r *Repository) UpdateSession(ctx context.Context, s *chat.Session) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *Repository) AppendEvaluatorRun(ctx context.Context, id ulid.ULID, run map[string]interface{}) error {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}

	var runs []map[string]interface{}
	if len(s.EvaluatorRuns) > 0 {
		if err := json.Unmarshal(s.EvaluatorRuns, &runs); err != nil {
			runs = nil
		}
	}
	runs = append(runs, run)

	encoded, err := json.Marshal(runs)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&chat.Session{}).
		Where("id = ?", id.String()).
		Update("evaluator_runs", datatypes.JSON(encoded)).Error
}

func (r *Repository) DeleteSession(ctx context.Context, id ulid.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id.String()).Delete(&chat.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id.String()).Delete(&chat.Session{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return chat.ErrSessionNotFound
		}
		return nil
	})
}

func (r *Repository) CreateMessage(ctx context.Context, m *chat.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repository) ListMessages(ctx context.Context, sessionID ulid.ULID) ([]*chat.Message, error) {
	var messages []*chat.Message
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID.String()).
		Order("created_at ASC").
		Find(&messages)
	return messages, result.Error
}
