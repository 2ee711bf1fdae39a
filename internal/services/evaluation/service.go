package evaluation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"evalforge/internal/config"
	"evalforge/internal/core/domain/chat"
	"evalforge/internal/core/domain/evalrun"
	"evalforge/internal/core/domain/evaluator"
	"evalforge/internal/core/domain/file"
	"evalforge/internal/core/domain/history"
	"evalforge/internal/core/domain/job"
	"evalforge/internal/core/domain/listing"
	"evalforge/internal/core/domain/settings"
	"evalforge/internal/infrastructure/providers"
	"evalforge/internal/infrastructure/storage"
	"evalforge/internal/workers/jobworker"
)

// Service bundles the evaluation runners' dependencies and registers the job
// handlers.
type Service struct {
	cfg        *config.Config
	logger     *slog.Logger
	runs       evalrun.Repository
	listings   listing.Repository
	chats      chat.Repository
	evaluators evaluator.Repository
	files      file.Repository
	settings   settings.Repository
	history    history.Repository
	store      storage.Store
	control    jobworker.Control
}

// NewService builds the evaluation service.
func NewService(
	cfg *config.Config,
	logger *slog.Logger,
	runs evalrun.Repository,
	listings listing.Repository,
	chats chat.Repository,
	evaluators evaluator.Repository,
	files file.Repository,
	settingsRepo settings.Repository,
	historyRepo history.Repository,
	store storage.Store,
	control jobworker.Control,
) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger,
		runs:       runs,
		listings:   listings,
		chats:      chats,
		evaluators: evaluators,
		files:      files,
		settings:   settingsRepo,
		history:    historyRepo,
		store:      store,
		control:    control,
	}
}

// RegisterHandlers binds every evaluator family to its job type.
func (s *Service) RegisterHandlers(w *jobworker.Worker) {
	w.Register(job.TypeEvaluateBatch, s.RunBatchEvaluation)
	w.Register(job.TypeEvaluateAdversarial, s.RunAdversarialEvaluation)
	w.Register(job.TypeEvaluateCustom, s.RunCustomEvaluator)
	w.Register(job.TypeEvaluateCustomBatch, s.RunCustomBatch)
	w.Register(job.TypeEvaluateVoiceRx, s.RunVoiceRxEvaluation)
}

// SaveAPILog implements providers.LogSink: it persists the row and observes
// the call-duration metric.
func (s *Service) SaveAPILog(ctx context.Context, log *evalrun.APILog) error {
	if log.DurationMs != nil {
		jobworker.LLMCallDuration.WithLabelValues(log.Provider, log.Method).Observe(*log.DurationMs / 1000)
	}
	return s.runs.CreateAPILog(ctx, log)
}

// newAuditedProvider builds a provider from resolved settings and wraps it
// with the audit interceptor. One wrapper is allocated per run.
func (s *Service) newAuditedProvider(ctx context.Context, llmSettings *LLMSettings, model string, temperature float64) (*providers.AuditWrapper, error) {
	if model == "" {
		model = llmSettings.SelectedModel
	}
	inner, err := providers.New(ctx, providers.Config{
		Provider:           llmSettings.Provider,
		APIKey:             llmSettings.APIKey,
		Model:              model,
		Temperature:        temperature,
		ServiceAccountPath: llmSettings.ServiceAccountPath,
	})
	if err != nil {
		return nil, err
	}
	return providers.NewAuditWrapper(inner, s, s.logger), nil
}

// resolveSettings merges explicit params over the stored llm-settings.
func (s *Service) resolveSettings(ctx context.Context, provider, apiKey, model string, intent AuthIntent) (*LLMSettings, error) {
	if apiKey != "" {
		resolved := &LLMSettings{
			APIKey:        apiKey,
			Provider:      provider,
			SelectedModel: model,
			AuthMethod:    "api_key",
		}
		if resolved.Provider == "" {
			resolved.Provider = "gemini"
		}
		return resolved, nil
	}

	stored, err := ResolveLLMSettings(ctx, s.settings, s.cfg.LLM.GeminiServiceAccountPath, intent)
	if err != nil {
		return nil, err
	}
	if provider != "" {
		stored.Provider = provider
	}
	if model != "" {
		stored.SelectedModel = model
	}
	return stored, nil
}

// Param helpers shared by the runners. Job params arrive as decoded JSON:
// numbers are float64, or json.Number when read back from the jobs table, and
// lists are []interface{}.

func paramString(params map[string]interface{}, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

func paramBool(params map[string]interface{}, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func paramInt(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	}
	return def
}

func paramFloat(params map[string]interface{}, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func paramStringList(params map[string]interface{}, key string) []string {
	var out []string
	if items, ok := params[key].([]interface{}); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func paramMap(params map[string]interface{}, key string) map[string]interface{} {
	if m, ok := params[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

func paramDuration(params map[string]interface{}, key string, def time.Duration) time.Duration {
	seconds := paramFloat(params, key, -1)
	if seconds < 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}

func strPtr(s string) *string { return &s }

func float64Ptr(f float64) *float64 { return &f }
