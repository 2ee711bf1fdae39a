package evalrun

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/pkg/ulid"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, run *evalrun.EvalRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) GetByID(ctx context.Context, id ulid.ULID) (*evalrun.EvalRun, error) {
	var run evalrun.EvalRun
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&run)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, evalrun.ErrNotFound
		}
		return nil, result.Error
	}
	return &run, nil
}

func (r *Repository) List(ctx context.Context, filter evalrun.Filter, limit, offset int) ([]*evalrun.EvalRun, error) {
	var runs []*evalrun.EvalRun

	query := r.db.WithContext(ctx).Model(&evalrun.EvalRun{})
	if filter.AppID != nil {
		query = query.Where("app_id = ?", *filter.AppID)
	}
	if filter.EvalType != nil {
		query = query.Where("eval_type = ?", string(*filter.EvalType))
	}
	if filter.ListingID != nil {
		query = query.Where("listing_id = ?", filter.ListingID.String())
	}
	if filter.SessionID != nil {
		query = query.Where("session_id = ?", filter.SessionID.String())
	}
	if filter.EvaluatorID != nil {
		query = query.Where("evaluator_id = ?", filter.EvaluatorID.String())
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	result := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&runs)
	if result.Error != nil {
		return nil, result.Error
	}
	return runs, nil
}

func (r *Repository) Update(ctx context.Context, id ulid.ULID, update evalrun.Update) error {
	fields := map[string]interface{}{}
	if update.Status != nil {
		fields["status"] = string(*update.Status)
	}
	if update.ErrorMessage != nil {
		fields["error_message"] = *update.ErrorMessage
	}
	if update.CompletedAt != nil {
		fields["completed_at"] = *update.CompletedAt
	}
	if update.DurationMs != nil {
		fields["duration_ms"] = *update.DurationMs
	}
	if update.LLMProvider != nil {
		fields["llm_provider"] = *update.LLMProvider
	}
	if update.LLMModel != nil {
		fields["llm_model"] = *update.LLMModel
	}
	if update.Result != nil {
		fields["result"] = datatypes.JSONMap(update.Result)
	}
	if update.Summary != nil {
		fields["summary"] = datatypes.JSONMap(update.Summary)
	}
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&evalrun.EvalRun{}).
		Where("id = ?", id.String()).Updates(fields).Error
}

func (r *Repository) Delete(ctx context.Context, id ulid.ULID) error {
	run, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.Status == evalrun.StatusRunning {
		return evalrun.ErrRunRunning
	}

	// Children cascade at the database level; delete them explicitly too so
	// sqlite-backed tests behave identically without FK pragma setup.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id.String()).Delete(&evalrun.ThreadEvaluation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id.String()).Delete(&evalrun.AdversarialEvaluation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id.String()).Delete(&evalrun.APILog{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id.String()).Delete(&evalrun.EvalRun{}).Error
	})
}

func (r *Repository) CancelRunningByJob(ctx context.Context, jobID ulid.ULID, completedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&evalrun.EvalRun{}).
		Where("job_id = ? AND status = ?", jobID.String(), string(evalrun.StatusRunning)).
		Updates(map[string]interface{}{
			"status":       string(evalrun.StatusCancelled),
			"completed_at": completedAt,
		}).Error
}

func (r *Repository) CreateThreadEvaluation(ctx context.Context, te *evalrun.ThreadEvaluation) error {
	return r.db.WithContext(ctx).Create(te).Error
}

func (r *Repository) ListThreadEvaluations(ctx context.Context, runID ulid.ULID) ([]*evalrun.ThreadEvaluation, error) {
	var evals []*evalrun.ThreadEvaluation
	result := r.db.WithContext(ctx).
		Where("run_id = ?", runID.String()).
		Order("id ASC").
		Find(&evals)
	return evals, result.Error
}

func (r *Repository) ListThreadHistory(ctx context.Context, threadID string) ([]*evalrun.ThreadEvaluation, error) {
	var evals []*evalrun.ThreadEvaluation
	result := r.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("id DESC").
		Find(&evals)
	return evals, result.Error
}

func (r *Repository) CreateAdversarialEvaluation(ctx context.Context, ae *evalrun.AdversarialEvaluation) error {
	return r.db.WithContext(ctx).Create(ae).Error
}

func (r *Repository) ListAdversarialEvaluations(ctx context.Context, runID ulid.ULID) ([]*evalrun.AdversarialEvaluation, error) {
	var evals []*evalrun.AdversarialEvaluation
	result := r.db.WithContext(ctx).
		Where("run_id = ?", runID.String()).
		Order("id ASC").
		Find(&evals)
	return evals, result.Error
}

func (r *Repository) CreateAPILog(ctx context.Context, log *evalrun.APILog) error {
	log.Truncate()
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *Repository) ListAPILogs(ctx context.Context, runID *ulid.ULID, limit, offset int) ([]*evalrun.APILog, int64, error) {
	var logs []*evalrun.APILog
	var total int64

	query := r.db.WithContext(ctx).Model(&evalrun.APILog{})
	if runID != nil {
		query = query.Where("run_id = ?", runID.String())
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("id DESC").Limit(limit).Offset(offset).Find(&logs)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	return logs, total, nil
}

func (r *Repository) DeleteAPILogs(ctx context.Context, runID *ulid.ULID) (int64, error) {
	query := r.db.WithContext(ctx)
	if runID != nil {
		query = query.Where("run_id = ?", runID.String())
	} else {
		query = query.Where("1 = 1")
	}
	result := query.Delete(&evalrun.APILog{})
	return result.RowsAffected, result.Error
}

func (r *Repository) Stats(ctx context.Context) (*evalrun.SummaryStats, error) {
	stats := &evalrun.SummaryStats{
		CorrectnessDistribution: map[string]int64{},
		EfficiencyDistribution:  map[string]int64{},
		AdversarialDistribution: map[string]int64{},
		IntentDistribution:      map[string]int64{},
	}

	if err := r.db.WithContext(ctx).Model(&evalrun.EvalRun{}).Count(&stats.TotalRuns).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&evalrun.ThreadEvaluation{}).
		Distinct("thread_id").Count(&stats.TotalThreadsEvaluated).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&evalrun.AdversarialEvaluation{}).
		Count(&stats.TotalAdversarialTests).Error; err != nil {
		return nil, err
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var buckets []bucket
	if err := r.db.WithContext(ctx).Model(&evalrun.ThreadEvaluation{}).
		Select("worst_correctness AS key, COUNT(*) AS count").
		Where("worst_correctness IS NOT NULL").
		Group("worst_correctness").Scan(&buckets).Error; err != nil {
		return nil, err
	}
	for _, b := range buckets {
		stats.CorrectnessDistribution[b.Key] = b.Count
	}

	buckets = nil
	if err := r.db.WithContext(ctx).Model(&evalrun.ThreadEvaluation{}).
		Select("efficiency_verdict AS key, COUNT(*) AS count").
		Where("efficiency_verdict IS NOT NULL").
		Group("efficiency_verdict").Scan(&buckets).Error; err != nil {
		return nil, err
	}
	for _, b := range buckets {
		stats.EfficiencyDistribution[b.Key] = b.Count
	}

	buckets = nil
	if err := r.db.WithContext(ctx).Model(&evalrun.AdversarialEvaluation{}).
		Select("verdict AS key, COUNT(*) AS count").
		Where("verdict IS NOT NULL").
		Group("verdict").Scan(&buckets).Error; err != nil {
		return nil, err
	}
	for _, b := range buckets {
		stats.AdversarialDistribution[b.Key] = b.Count
	}

	var avg sql.NullFloat64
	if err := r.db.WithContext(ctx).Model(&evalrun.ThreadEvaluation{}).
		Select("AVG(intent_accuracy)").
		Where("intent_accuracy IS NOT NULL").
		Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AvgIntentAccuracy = &avg.Float64
	}

	if stats.TotalThreadsEvaluated > 0 {
		var correct int64
		if err := r.db.WithContext(ctx).Model(&evalrun.ThreadEvaluation{}).
			Where("intent_accuracy >= ?", 0.5).Count(&correct).Error; err != nil {
			return nil, err
		}
		stats.IntentDistribution["CORRECT"] = correct
		stats.IntentDistribution["INCORRECT"] = stats.TotalThreadsEvaluated - correct
	}

	return stats, nil
}

func (r *Repository) Trends(ctx context.Context, days int) ([]evalrun.TrendPoint, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var points []evalrun.TrendPoint
	err := r.db.WithContext(ctx).Model(&evalrun.ThreadEvaluation{}).
		Select("DATE(created_at) AS day, worst_correctness, COUNT(*) AS count").
		Where("created_at >= ?", cutoff).
		Group("DATE(created_at), worst_correctness").
		Order("DATE(created_at)").
		Scan(&points).Error
	return points, err
}
