// Package evalrun provides the unified evaluation run model: every
// evaluation execution is an EvalRun row, with per-thread, per-case, and
// per-LLM-call child rows cascading from it.
package evalrun

import (
	"time"

	"gorm.io/datatypes"

	"evalforge/pkg/ulid"
)

// EvalType classifies an evaluation run.
type EvalType string

const (
	EvalTypeCustom           EvalType = "custom"
	EvalTypeFullEvaluation   EvalType = "full_evaluation"
	EvalTypeHuman            EvalType = "human"
	EvalTypeBatchThread      EvalType = "batch_thread"
	EvalTypeBatchAdversarial EvalType = "batch_adversarial"
)

// MapLegacyCommand maps legacy command names onto canonical eval types.
// Unknown commands pass through unchanged so callers can still filter on
// eval_type values directly.
func MapLegacyCommand(command string) EvalType {
	switch command {
	case "evaluate-batch":
		return EvalTypeBatchThread
	case "adversarial":
		return EvalTypeBatchAdversarial
	case "evaluate-voice-rx":
		return EvalTypeCustom
	default:
		return EvalType(command)
	}
}

// Status is the run lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Correctness verdicts ranked by severity.
const (
	VerdictNotApplicable = "NOT APPLICABLE"
	VerdictPass          = "PASS"
	VerdictSoftFail      = "SOFT FAIL"
	VerdictHardFail      = "HARD FAIL"
	VerdictCritical      = "CRITICAL"
)

// severityRank orders correctness verdicts from least to most severe.
var severityRank = map[string]int{
	VerdictNotApplicable: 0,
	VerdictPass:          1,
	VerdictSoftFail:      2,
	VerdictHardFail:      3,
	VerdictCritical:      4,
}

// WorseVerdict returns the more severe of two correctness verdicts.
func WorseVerdict(a, b string) string {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// EvalRun is one evaluation execution.
type EvalRun struct {
	ID       ulid.ULID `json:"id" gorm:"type:char(26);primaryKey"`
	AppID    string    `json:"app_id" gorm:"type:varchar(50);not null;index:idx_eval_runs_app_type,priority:1"`
	EvalType EvalType  `json:"eval_type" gorm:"type:varchar(30);not null;index:idx_eval_runs_app_type,priority:2"`

	// Source references — exactly one of listing/session is set for any
	// non-batch run.
	ListingID   *ulid.ULID `json:"listing_id,omitempty" gorm:"type:char(26);index:idx_eval_runs_listing,priority:1"`
	SessionID   *ulid.ULID `json:"session_id,omitempty" gorm:"type:char(26);index:idx_eval_runs_session,priority:1"`
	EvaluatorID *ulid.ULID `json:"evaluator_id,omitempty" gorm:"type:char(26);index"`
	JobID       *ulid.ULID `json:"job_id,omitempty" gorm:"type:char(26);index"`

	Status       Status  `json:"status" gorm:"type:varchar(30);not null;default:'pending'"`
	ErrorMessage *string `json:"error_message,omitempty" gorm:"type:text"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *float64   `json:"duration_ms,omitempty"`

	LLMProvider *string `json:"llm_provider,omitempty" gorm:"type:varchar(50)"`
	LLMModel    *string `json:"llm_model,omitempty" gorm:"type:varchar(100)"`

	Config        datatypes.JSONMap `json:"config" gorm:"type:jsonb;default:'{}'"`
	Result        datatypes.JSONMap `json:"result,omitempty" gorm:"type:jsonb"`
	Summary       datatypes.JSONMap `json:"summary,omitempty" gorm:"type:jsonb"`
	BatchMetadata datatypes.JSONMap `json:"batch_metadata,omitempty" gorm:"type:jsonb"`

	UserID    string    `json:"user_id" gorm:"type:varchar(100);not null;default:'default'"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime;index:idx_eval_runs_listing,priority:2;index:idx_eval_runs_session,priority:2;index:idx_eval_runs_app_type,priority:3"`

	ThreadEvaluations      []ThreadEvaluation      `json:"-" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	AdversarialEvaluations []AdversarialEvaluation `json:"-" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
	APILogs                []APILog                `json:"-" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (EvalRun) TableName() string {
	return "eval_runs"
}

// New creates a pending run.
func New(appID string, evalType EvalType) *EvalRun {
	return &EvalRun{
		ID:        ulid.New(),
		AppID:     appID,
		EvalType:  evalType,
		Status:    StatusPending,
		Config:    datatypes.JSONMap{},
		UserID:    "default",
		CreatedAt: time.Now(),
	}
}

// ThreadEvaluation is the per-thread result inside a batch run.
type ThreadEvaluation struct {
	ID                int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID             ulid.ULID         `json:"run_id" gorm:"type:char(26);not null;index"`
	ThreadID          string            `json:"thread_id" gorm:"type:varchar(200);not null;index"`
	DataFileHash      *string           `json:"data_file_hash,omitempty" gorm:"type:varchar(50);index"`
	IntentAccuracy    *float64          `json:"intent_accuracy,omitempty"`
	WorstCorrectness  *string           `json:"worst_correctness,omitempty" gorm:"type:varchar(20)"`
	EfficiencyVerdict *string           `json:"efficiency_verdict,omitempty" gorm:"type:varchar(20)"`
	SuccessStatus     bool              `json:"success_status" gorm:"default:false"`
	Result            datatypes.JSONMap `json:"result" gorm:"type:jsonb;not null"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;autoCreateTime"`
}

func (ThreadEvaluation) TableName() string {
	return "thread_evaluations"
}

// AdversarialEvaluation is the per-test-case verdict inside an adversarial run.
type AdversarialEvaluation struct {
	ID           int64             `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID        ulid.ULID         `json:"run_id" gorm:"type:char(26);not null;index"`
	Category     *string           `json:"category,omitempty" gorm:"type:varchar(50)"`
	Difficulty   *string           `json:"difficulty,omitempty" gorm:"type:varchar(20)"`
	Verdict      *string           `json:"verdict,omitempty" gorm:"type:varchar(20)"`
	GoalAchieved bool              `json:"goal_achieved" gorm:"default:false"`
	TotalTurns   int               `json:"total_turns" gorm:"default:0"`
	Result       datatypes.JSONMap `json:"result" gorm:"type:jsonb;not null"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null;autoCreateTime"`
}

func (AdversarialEvaluation) TableName() string {
	return "adversarial_evaluations"
}

// Truncation limits for persisted LLM call text.
const (
	MaxPromptChars       = 50000
	MaxSystemPromptChars = 20000
	MaxResponseChars     = 50000
)

// APILog is one persisted LLM call.
type APILog struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID        *ulid.ULID `json:"run_id,omitempty" gorm:"type:char(26);index"`
	ThreadID     *string    `json:"thread_id,omitempty" gorm:"type:varchar(200);index"`
	Provider     string     `json:"provider" gorm:"type:varchar(50);not null"`
	Model        string     `json:"model" gorm:"type:varchar(100);not null"`
	Method       string     `json:"method" gorm:"type:varchar(50);not null"`
	Prompt       string     `json:"prompt" gorm:"type:text;not null"`
	SystemPrompt *string    `json:"system_prompt,omitempty" gorm:"type:text"`
	Response     *string    `json:"response,omitempty" gorm:"type:text"`
	Error        *string    `json:"error,omitempty" gorm:"type:text"`
	DurationMs   *float64   `json:"duration_ms,omitempty"`
	TokensIn     *int       `json:"tokens_in,omitempty"`
	TokensOut    *int       `json:"tokens_out,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null;autoCreateTime"`
}

func (APILog) TableName() string {
	return "api_logs"
}

// Truncate clamps prompt, system prompt, and response to their storage limits.
func (l *APILog) Truncate() {
	l.Prompt = clamp(l.Prompt, MaxPromptChars)
	if l.SystemPrompt != nil {
		s := clamp(*l.SystemPrompt, MaxSystemPromptChars)
		l.SystemPrompt = &s
	}
	if l.Response != nil {
		s := clamp(*l.Response, MaxResponseChars)
		l.Response = &s
	}
}

func clamp(s string, limit int) string {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
