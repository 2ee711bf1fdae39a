package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/job"
	evalrunRepo "evalforge/internal/infrastructure/repository/evalrun"
	jobRepo "evalforge/internal/infrastructure/repository/job"
	"evalforge/internal/workers/jobworker"
)

type testEnv struct {
	router *gin.Engine
	jobs   job.Repository
	runs   evalrun.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	worker := jobworker.New(jobs, runs, slog.Default(), time.Second, 2000)

	h, err := New(slog.Default(), jobs, runs, nil, nil, nil, nil, nil, nil, nil, nil, nil, worker, nil)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/api/jobs", h.CreateJob)
	router.GET("/api/jobs/:id", h.GetJob)
	router.POST("/api/jobs/:id/cancel", h.CancelJob)
	router.GET("/api/eval-runs/:id", h.GetEvalRun)
	router.DELETE("/api/eval-runs/:id", h.DeleteEvalRun)

	return &testEnv{router: router, jobs: jobs, runs: runs}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateJobReturns201(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/api/jobs", map[string]interface{}{
		"jobType": "evaluate-batch",
		"params":  map[string]interface{}{"csv_content": "big blob", "app_id": "kaira-bot"},
	})

	assert.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		Data struct {
			ID     string                 `json:"id"`
			Status string                 `json:"status"`
			Params map[string]interface{} `json:"params"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body.Data.Status)
	// csv_content is stripped from API responses.
	assert.NotContains(t, body.Data.Params, "csv_content")
	assert.Equal(t, "kaira-bot", body.Data.Params["app_id"])
}

func TestCreateJobUnknownTypeIs422(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodPost, "/api/jobs", map[string]interface{}{"jobType": "mystery"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCancelQueuedJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	j := job.New(job.TypeEvaluateBatch, nil)
	require.NoError(t, env.jobs.Create(ctx, j))

	rec := env.request(t, http.MethodPost, "/api/jobs/"+j.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.jobs.GetByID(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, stored.Status)
}

func TestCancelCompletedJobIs400(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	j := job.New(job.TypeEvaluateBatch, nil)
	require.NoError(t, env.jobs.Create(ctx, j))
	require.NoError(t, env.jobs.MarkRunning(ctx, j.ID))
	require.NoError(t, env.jobs.MarkCompleted(ctx, j.ID, nil))

	rec := env.request(t, http.MethodPost, "/api/jobs/"+j.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelCascadesToRunningRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	j := job.New(job.TypeEvaluateAdversarial, nil)
	require.NoError(t, env.jobs.Create(ctx, j))
	require.NoError(t, env.jobs.MarkRunning(ctx, j.ID))

	run := evalrun.New("kaira-bot", evalrun.EvalTypeBatchAdversarial)
	run.JobID = &j.ID
	run.Status = evalrun.StatusRunning
	require.NoError(t, env.runs.Create(ctx, run))

	rec := env.request(t, http.MethodPost, "/api/jobs/"+j.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, evalrun.StatusCancelled, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestCancelAlreadyCancelledIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	j := job.New(job.TypeEvaluateAdversarial, nil)
	require.NoError(t, env.jobs.Create(ctx, j))
	require.NoError(t, env.jobs.MarkCancelled(ctx, j.ID))

	// An orphaned running run left behind by a crash.
	run := evalrun.New("kaira-bot", evalrun.EvalTypeBatchAdversarial)
	run.JobID = &j.ID
	run.Status = evalrun.StatusRunning
	require.NoError(t, env.runs.Create(ctx, run))

	rec := env.request(t, http.MethodPost, "/api/jobs/"+j.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, evalrun.StatusCancelled, stored.Status)
}

func TestDeleteRunningRunIs400(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	run := evalrun.New("kaira-bot", evalrun.EvalTypeBatchThread)
	run.Status = evalrun.StatusRunning
	require.NoError(t, env.runs.Create(ctx, run))

	rec := env.request(t, http.MethodDelete, "/api/eval-runs/"+run.ID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCompletedRunCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	run := evalrun.New("kaira-bot", evalrun.EvalTypeBatchThread)
	run.Status = evalrun.StatusCompleted
	require.NoError(t, env.runs.Create(ctx, run))
	require.NoError(t, env.runs.CreateThreadEvaluation(ctx, &evalrun.ThreadEvaluation{
		RunID: run.ID, ThreadID: "t1", Result: map[string]interface{}{"ok": true},
	}))

	rec := env.request(t, http.MethodDelete, "/api/eval-runs/"+run.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := env.runs.GetByID(ctx, run.ID)
	assert.ErrorIs(t, err, evalrun.ErrNotFound)

	children, err := env.runs.ListThreadEvaluations(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/api/jobs/01HZZZZZZZZZZZZZZZZZZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
