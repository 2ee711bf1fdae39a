package evalrun

import (
	"context"
	"time"

	"evalforge/pkg/ulid"
)

// Filter narrows run listings.
type Filter struct {
	AppID       *string
	EvalType    *EvalType
	ListingID   *ulid.ULID
	SessionID   *ulid.ULID
	EvaluatorID *ulid.ULID
	Status      *Status
}

// Update carries the mutable fields written as a run progresses.
type Update struct {
	Status       *Status
	ErrorMessage *string
	CompletedAt  *time.Time
	DurationMs   *float64
	LLMProvider  *string
	LLMModel     *string
	Result       map[string]interface{}
	Summary      map[string]interface{}
}

// SummaryStats aggregates counts and distributions across all runs.
type SummaryStats struct {
	TotalRuns               int64            `json:"total_runs"`
	TotalThreadsEvaluated   int64            `json:"total_threads_evaluated"`
	TotalAdversarialTests   int64            `json:"total_adversarial_tests"`
	CorrectnessDistribution map[string]int64 `json:"correctness_distribution"`
	EfficiencyDistribution  map[string]int64 `json:"efficiency_distribution"`
	AdversarialDistribution map[string]int64 `json:"adversarial_distribution"`
	AvgIntentAccuracy       *float64         `json:"avg_intent_accuracy"`
	IntentDistribution      map[string]int64 `json:"intent_distribution"`
}

// TrendPoint is a per-day verdict count.
type TrendPoint struct {
	Day              string `json:"day"`
	WorstCorrectness string `json:"worst_correctness"`
	Count            int64  `json:"cnt"`
}

// Repository is the persistence port for eval runs and their children.
type Repository interface {
	Create(ctx context.Context, run *EvalRun) error
	GetByID(ctx context.Context, id ulid.ULID) (*EvalRun, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*EvalRun, error)
	Update(ctx context.Context, id ulid.ULID, update Update) error
	// Delete removes a run and cascades to children. Deleting a running run
	// is a state conflict.
	Delete(ctx context.Context, id ulid.ULID) error
	// CancelRunningByJob flips any running run owned by jobID to cancelled.
	CancelRunningByJob(ctx context.Context, jobID ulid.ULID, completedAt time.Time) error

	CreateThreadEvaluation(ctx context.Context, te *ThreadEvaluation) error
	ListThreadEvaluations(ctx context.Context, runID ulid.ULID) ([]*ThreadEvaluation, error)
	ListThreadHistory(ctx context.Context, threadID string) ([]*ThreadEvaluation, error)

	CreateAdversarialEvaluation(ctx context.Context, ae *AdversarialEvaluation) error
	ListAdversarialEvaluations(ctx context.Context, runID ulid.ULID) ([]*AdversarialEvaluation, error)

	CreateAPILog(ctx context.Context, log *APILog) error
	ListAPILogs(ctx context.Context, runID *ulid.ULID, limit, offset int) ([]*APILog, int64, error)
	DeleteAPILogs(ctx context.Context, runID *ulid.ULID) (int64, error)

	Stats(ctx context.Context) (*SummaryStats, error)
	Trends(ctx context.Context, days int) ([]TrendPoint, error)
}
