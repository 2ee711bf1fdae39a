// Package jobworker runs the single-process background job queue: it polls
// the jobs table for queued rows, dispatches to registered handlers, and
// enforces the job status machine with cooperative cancellation.
package jobworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/job"
	"evalforge/pkg/ulid"
)

// ErrJobCancelled is the cooperative-cancellation sentinel. Handlers raise
// it when a cancel is observed; runners translate it to a cancelled run,
// never a failed one.
var ErrJobCancelled = errors.New("job was cancelled by user")

// Handler processes one job and returns the job result payload.
type Handler func(ctx context.Context, jobID ulid.ULID, params map[string]interface{}) (map[string]interface{}, error)

// Control is the narrow surface handlers use for cancellation checks and
// progress reporting.
type Control interface {
	// IsCancelled reports whether the job has been cancelled, consulting the
	// in-memory registry first so in-flight handlers observe cancellation
	// even before re-reading the row.
	IsCancelled(ctx context.Context, jobID ulid.ULID) (bool, error)
	// CheckCancelled returns ErrJobCancelled when the job is cancelled.
	CheckCancelled(ctx context.Context, jobID ulid.ULID) error
	UpdateProgress(ctx context.Context, jobID ulid.ULID, progress job.Progress) error
}

// Worker owns job dispatch for the process.
type Worker struct {
	jobs         job.Repository
	runs         evalrun.Repository
	handlers     map[job.Type]Handler
	cancelled    *CancelRegistry
	logger       *slog.Logger
	pollInterval time.Duration
	errLimit     int
}

// New creates a worker. Handlers are registered afterwards via Register.
func New(jobs job.Repository, runs evalrun.Repository, logger *slog.Logger, pollInterval time.Duration, errLimit int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if errLimit <= 0 {
		errLimit = 2000
	}
	return &Worker{
		jobs:         jobs,
		runs:         runs,
		handlers:     make(map[job.Type]Handler),
		cancelled:    NewCancelRegistry(30 * time.Minute),
		logger:       logger,
		pollInterval: pollInterval,
		errLimit:     errLimit,
	}
}

// Register binds a handler to a job type.
func (w *Worker) Register(jobType job.Type, handler Handler) {
	w.handlers[jobType] = handler
}

// Run polls until the context is cancelled. After a successful dispatch the
// queue is re-polled immediately; an empty queue sleeps for the poll interval.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Job worker started", "poll_interval", w.pollInterval)
	for {
		processed, err := w.pollOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("Worker loop error", "error", err)
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
			w.logger.Info("Job worker stopped")
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// pollOnce picks and processes at most one job.
func (w *Worker) pollOnce(ctx context.Context) (bool, error) {
	next, err := w.jobs.NextQueued(ctx)
	if err != nil || next == nil {
		return false, err
	}

	w.logger.Info("Processing job", "job_id", next.ID.String(), "type", next.JobType)
	JobsInFlight.Inc()
	defer JobsInFlight.Dec()

	if err := w.jobs.MarkRunning(ctx, next.ID); err != nil {
		// The row may have been cancelled between the poll and the claim.
		w.logger.Warn("Failed to claim job", "job_id", next.ID.String(), "error", err)
		return true, nil
	}

	result, handlerErr := w.dispatch(ctx, next)

	switch {
	case handlerErr == nil:
		if err := w.jobs.MarkCompleted(ctx, next.ID, result); err != nil {
			return true, fmt.Errorf("failed to mark job completed: %w", err)
		}
		JobsProcessed.WithLabelValues(string(job.StatusCompleted)).Inc()
		w.logger.Info("Job completed", "job_id", next.ID.String())

	case errors.Is(handlerErr, ErrJobCancelled):
		if err := w.jobs.MarkCancelled(ctx, next.ID); err != nil {
			return true, fmt.Errorf("failed to mark job cancelled: %w", err)
		}
		JobsProcessed.WithLabelValues(string(job.StatusCancelled)).Inc()
		w.logger.Info("Job cancelled", "job_id", next.ID.String())

	default:
		msg := handlerErr.Error()
		if len(msg) > w.errLimit {
			msg = msg[:w.errLimit]
		}
		if err := w.jobs.MarkFailed(ctx, next.ID, msg); err != nil {
			return true, fmt.Errorf("failed to mark job failed: %w", err)
		}
		JobsProcessed.WithLabelValues(string(job.StatusFailed)).Inc()
		w.logger.Error("Job failed", "job_id", next.ID.String(), "error", handlerErr)
	}

	return true, nil
}

func (w *Worker) dispatch(ctx context.Context, j *job.Job) (map[string]interface{}, error) {
	handler, ok := w.handlers[j.JobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", job.ErrUnknownType, j.JobType)
	}
	return handler(ctx, j.ID, j.Params)
}

// MarkLocallyCancelled records a cancel in the in-memory registry so
// in-flight handlers see it even before the row update commits.
func (w *Worker) MarkLocallyCancelled(jobID ulid.ULID) {
	w.cancelled.Add(jobID)
}

func (w *Worker) IsCancelled(ctx context.Context, jobID ulid.ULID) (bool, error) {
	if w.cancelled.Contains(jobID) {
		return true, nil
	}
	j, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return j.Status == job.StatusCancelled, nil
}

func (w *Worker) CheckCancelled(ctx context.Context, jobID ulid.ULID) error {
	cancelled, err := w.IsCancelled(ctx, jobID)
	if err != nil {
		return err
	}
	if cancelled {
		return ErrJobCancelled
	}
	return nil
}

func (w *Worker) UpdateProgress(ctx context.Context, jobID ulid.ULID, progress job.Progress) error {
	return w.jobs.UpdateProgress(ctx, jobID, progress)
}
