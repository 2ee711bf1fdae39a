package jobworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/job"
	evalrunRepo "evalforge/internal/infrastructure/repository/evalrun"
	jobRepo "evalforge/internal/infrastructure/repository/job"
	"evalforge/pkg/ulid"
)

func newTestWorker(t *testing.T) (*Worker, job.Repository, evalrun.Repository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&job.Job{}, &evalrun.EvalRun{},
		&evalrun.ThreadEvaluation{}, &evalrun.AdversarialEvaluation{}, &evalrun.APILog{},
	))

	jobs := jobRepo.NewRepository(db)
	runs := evalrunRepo.NewRepository(db)
	worker := New(jobs, runs, slog.Default(), 10*time.Millisecond, 200)
	return worker, jobs, runs
}

func TestWorkerCompletesJob(t *testing.T) {
	worker, jobs, _ := newTestWorker(t)
	ctx := context.Background()

	worker.Register(job.TypeEvaluateBatch, func(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"done": true}, nil
	})

	j := job.New(job.TypeEvaluateBatch, nil)
	require.NoError(t, jobs.Create(ctx, j))

	processed, err := worker.pollOnce(ctx)
	require.NoError(t, err)
	assert.True(t, processed)

	stored, err := jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, stored.Status)
	assert.Equal(t, true, stored.Result["done"])
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.Equal(t, json.Number("1"), stored.Progress["current"])
	assert.Equal(t, "Done", stored.Progress["message"])
}

func TestWorkerFailsJobWithTruncatedMessage(t *testing.T) {
	worker, jobs, _ := newTestWorker(t)
	ctx := context.Background()

	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	worker.Register(job.TypeEvaluateBatch, func(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
		return nil, fmt.Errorf("boom: %s", long)
	})

	j := job.New(job.TypeEvaluateBatch, nil)
	require.NoError(t, jobs.Create(ctx, j))

	_, err := worker.pollOnce(ctx)
	require.NoError(t, err)

	stored, err := jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, 200)
}

func TestWorkerUnknownTypeFails(t *testing.T) {
	worker, jobs, _ := newTestWorker(t)
	ctx := context.Background()

	j := job.New(job.Type("mystery-job"), nil)
	require.NoError(t, jobs.Create(ctx, j))

	_, err := worker.pollOnce(ctx)
	require.NoError(t, err)

	stored, err := jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, stored.Status)
	assert.Contains(t, *stored.ErrorMessage, "unknown job type")
}

func TestWorkerCancellationSentinel(t *testing.T) {
	worker, jobs, _ := newTestWorker(t)
	ctx := context.Background()

	worker.Register(job.TypeEvaluateBatch, func(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
		worker.MarkLocallyCancelled(jobID)
		return nil, worker.CheckCancelled(ctx, jobID)
	})

	j := job.New(job.TypeEvaluateBatch, nil)
	require.NoError(t, jobs.Create(ctx, j))

	_, err := worker.pollOnce(ctx)
	require.NoError(t, err)

	stored, err := jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, stored.Status)
	assert.Nil(t, stored.ErrorMessage)
}

func TestWorkerPollsOldestFirst(t *testing.T) {
	worker, jobs, _ := newTestWorker(t)
	ctx := context.Background()

	var processedOrder []string
	worker.Register(job.TypeEvaluateBatch, func(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error) {
		processedOrder = append(processedOrder, jobID.String())
		return nil, nil
	})

	first := job.New(job.TypeEvaluateBatch, nil)
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := job.New(job.TypeEvaluateBatch, nil)
	require.NoError(t, jobs.Create(ctx, second))
	require.NoError(t, jobs.Create(ctx, first))

	_, err := worker.pollOnce(ctx)
	require.NoError(t, err)
	_, err = worker.pollOnce(ctx)
	require.NoError(t, err)

	require.Len(t, processedOrder, 2)
	assert.Equal(t, first.ID.String(), processedOrder[0])
	assert.Equal(t, second.ID.String(), processedOrder[1])
}

func TestIsCancelledConsultsRegistryBeforeDB(t *testing.T) {
	worker, jobs, _ := newTestWorker(t)
	ctx := context.Background()

	j := job.New(job.TypeEvaluateBatch, nil)
	require.NoError(t, jobs.Create(ctx, j))

	cancelled, err := worker.IsCancelled(ctx, j.ID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	// Registry entry is visible before any row update commits.
	worker.MarkLocallyCancelled(j.ID)
	cancelled, err = worker.IsCancelled(ctx, j.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestCancelRegistryExpires(t *testing.T) {
	registry := NewCancelRegistry(10 * time.Millisecond)
	id := ulid.New()
	registry.Add(id)
	assert.True(t, registry.Contains(id))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, registry.Contains(id))
}
