package job

import (
	"context"

	"evalforge/pkg/ulid"
)

// Repository is the persistence port for jobs.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id ulid.ULID) (*Job, error)
	List(ctx context.Context, status *Status, limit, offset int) ([]*Job, int64, error)

	// NextQueued returns the oldest queued job, or nil when the queue is empty.
	NextQueued(ctx context.Context) (*Job, error)

	// MarkRunning transitions a queued job to running, stamping started_at.
	MarkRunning(ctx context.Context, id ulid.ULID) error
	// MarkCompleted writes the terminal completed state with result and
	// a final progress of {1, 1, "Done"}.
	MarkCompleted(ctx context.Context, id ulid.ULID, result map[string]interface{}) error
	// MarkFailed writes the terminal failed state with the message as given;
	// the worker truncates it before the call.
	MarkFailed(ctx context.Context, id ulid.ULID, errorMessage string) error
	// MarkCancelled writes the terminal cancelled state.
	MarkCancelled(ctx context.Context, id ulid.ULID) error

	UpdateProgress(ctx context.Context, id ulid.ULID, progress Progress) error
}
