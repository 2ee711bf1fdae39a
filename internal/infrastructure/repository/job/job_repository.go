package job

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"evalforge/internal/core/domain/job"
	"evalforge/pkg/ulid"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, j *job.Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*job.Job, error) {
	var j job.Job
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&j)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, job.ErrNotFound
		}
		return nil, result.Error
	}
	return &j, nil
}

func (r *Repository) List(ctx context.Context, status *job.Status, limit, offset int) ([]*job.Job, int64, error) {
	var jobs []*job.Job
	var total int64

	query := r.db.WithContext(ctx).Model(&job.Job{})
	if status != nil {
		query = query.Where("status = ?", string(*status))
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return jobs, total, nil
}

func (r *Repository) NextQueued(ctx context.Context) (*job.Job, error) {
	var j job.Job
	result := r.db.WithContext(ctx).
		Where("status = ?", string(job.StatusQueued)).
		Order("created_at ASC").
		First(&j)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &j, nil
}

func (r *Repository) MarkRunning(ctx context.Context, id ulid.ULID) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ? AND status = ?", id.String(), string(job.StatusQueued)).
		Updates(map[string]interface{}{
			"status":     string(job.StatusRunning),
			"started_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkCompleted(ctx context.Context, id ulid.ULID, resultData map[string]interface{}) error {
	if resultData == nil {
		resultData = map[string]interface{}{}
	}
	return r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"status":       string(job.StatusCompleted),
			"result":       datatypes.JSONMap(resultData),
			"progress":     job.Progress{Current: 1, Total: 1, Message: "Done"}.ToMap(),
			"completed_at": time.Now(),
		}).Error
}

func (r *Repository) MarkFailed(ctx context.Context, id ulid.ULID, errorMessage string) error {
	return r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"status":        string(job.StatusFailed),
			"error_message": errorMessage,
			"completed_at":  time.Now(),
		}).Error
}

func (r *Repository) MarkCancelled(ctx context.Context, id ulid.ULID) error {
	return r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ?", id.String()).
		Updates(map[string]interface{}{
			"status":       string(job.StatusCancelled),
			"completed_at": time.Now(),
		}).Error
}

func (r *Repository) UpdateProgress(ctx context.Context, id ulid.ULID, progress job.Progress) error {
	return r.db.WithContext(ctx).Model(&job.Job{}).
		Where("id = ?", id.String()).
		Update("progress", progress.ToMap()).Error
}
