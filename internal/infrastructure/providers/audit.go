package providers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/pkg/ulid"
)

// LogSink persists one APILog row. Implementations must be safe for
// concurrent use; the wrapper never propagates sink errors.
type LogSink interface {
	SaveAPILog(ctx context.Context, log *evalrun.APILog) error
}

// AuditWrapper intercepts every provider call and records an api_log row
// with timing, prompt, response, and error — whether or not the call
// succeeded. It carries mutable run/thread context; runners allocate one
// wrapper per run and mutate the thread id single-threadedly.
type AuditWrapper struct {
	inner    Provider
	sink     LogSink
	logger   *slog.Logger
	runID    *ulid.ULID
	threadID *string
}

// NewAuditWrapper wraps a provider with API-call logging.
func NewAuditWrapper(inner Provider, sink LogSink, logger *slog.Logger) *AuditWrapper {
	return &AuditWrapper{inner: inner, sink: sink, logger: logger}
}

// SetContext binds the wrapper to a run (and optionally a thread).
func (w *AuditWrapper) SetContext(runID ulid.ULID, threadID string) {
	w.runID = &runID
	if threadID != "" {
		w.threadID = &threadID
	} else {
		w.threadID = nil
	}
}

// SetThreadID updates the thread context between items of a batch.
func (w *AuditWrapper) SetThreadID(threadID string) {
	if threadID == "" {
		w.threadID = nil
		return
	}
	w.threadID = &threadID
}

func (w *AuditWrapper) Name() string  { return w.inner.Name() }
func (w *AuditWrapper) Model() string { return w.inner.Model() }

func (w *AuditWrapper) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	start := time.Now()
	response, err := w.inner.Generate(ctx, prompt, opts)
	w.saveLog(ctx, MethodGenerate, prompt, opts.SystemPrompt, response, err, time.Since(start))
	return response, err
}

func (w *AuditWrapper) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}, opts Options) (map[string]interface{}, error) {
	start := time.Now()
	result, err := w.inner.GenerateJSON(ctx, prompt, schema, opts)

	var responseText string
	if result != nil {
		if encoded, marshalErr := json.Marshal(result); marshalErr == nil {
			responseText = string(encoded)
		}
	}
	w.saveLog(ctx, MethodGenerateJSON, prompt, opts.SystemPrompt, responseText, err, time.Since(start))
	return result, err
}

func (w *AuditWrapper) GenerateWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string, schema map[string]interface{}, opts Options) (string, error) {
	start := time.Now()
	response, err := w.inner.GenerateWithAudio(ctx, prompt, audio, mimeType, schema, opts)
	w.saveLog(ctx, MethodGenerateWithAudio, prompt, opts.SystemPrompt, response, err, time.Since(start))
	return response, err
}

// saveLog persists the call record. Persistence failures are swallowed so
// auditing never breaks the call graph.
func (w *AuditWrapper) saveLog(ctx context.Context, method, prompt, systemPrompt, response string, callErr error, elapsed time.Duration) {
	if w.sink == nil || w.runID == nil {
		return
	}

	durationMs := float64(elapsed.Microseconds()) / 1000

	logRow := &evalrun.APILog{
		RunID:      w.runID,
		ThreadID:   w.threadID,
		Provider:   w.inner.Name(),
		Model:      w.inner.Model(),
		Method:     method,
		Prompt:     prompt,
		DurationMs: &durationMs,
	}
	if systemPrompt != "" {
		logRow.SystemPrompt = &systemPrompt
	}
	if response != "" {
		logRow.Response = &response
	}
	if callErr != nil {
		msg := callErr.Error()
		logRow.Error = &msg
	}

	if err := w.sink.SaveAPILog(ctx, logRow); err != nil {
		w.logger.Warn("Failed to save API log", "error", err, "method", method)
	}
}
