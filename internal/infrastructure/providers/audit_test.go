package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalforge/internal/core/domain/evalrun"
	"evalforge/pkg/ulid"
)

type fakeProvider struct {
	response string
	jsonResp map[string]interface{}
	err      error
}

func (f *fakeProvider) Name() string  { return "gemini" }
func (f *fakeProvider) Model() string { return "test-model" }

func (f *fakeProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f.response, f.err
}

func (f *fakeProvider) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}, opts Options) (map[string]interface{}, error) {
	return f.jsonResp, f.err
}

func (f *fakeProvider) GenerateWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string, schema map[string]interface{}, opts Options) (string, error) {
	return f.response, f.err
}

type memorySink struct {
	mu   sync.Mutex
	logs []*evalrun.APILog
	err  error
}

func (m *memorySink) SaveAPILog(ctx context.Context, log *evalrun.APILog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.logs = append(m.logs, log)
	return nil
}

func TestAuditWrapperLogsSuccessfulCall(t *testing.T) {
	sink := &memorySink{}
	wrapper := NewAuditWrapper(&fakeProvider{response: "hello"}, sink, slog.Default())
	runID := ulid.New()
	wrapper.SetContext(runID, "thread-1")

	out, err := wrapper.Generate(context.Background(), "say hello", Options{SystemPrompt: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	require.Len(t, sink.logs, 1)
	logged := sink.logs[0]
	assert.Equal(t, runID.String(), logged.RunID.String())
	assert.Equal(t, "thread-1", *logged.ThreadID)
	assert.Equal(t, MethodGenerate, logged.Method)
	assert.Equal(t, "say hello", logged.Prompt)
	assert.Equal(t, "be brief", *logged.SystemPrompt)
	assert.Equal(t, "hello", *logged.Response)
	assert.Nil(t, logged.Error)
	require.NotNil(t, logged.DurationMs)
	assert.GreaterOrEqual(t, *logged.DurationMs, 0.0)
}

func TestAuditWrapperLogsFailedCall(t *testing.T) {
	sink := &memorySink{}
	wrapper := NewAuditWrapper(&fakeProvider{err: fmt.Errorf("rate limited")}, sink, slog.Default())
	wrapper.SetContext(ulid.New(), "")

	_, err := wrapper.GenerateJSON(context.Background(), "prompt", nil, Options{})
	require.Error(t, err)

	require.Len(t, sink.logs, 1)
	logged := sink.logs[0]
	assert.Equal(t, MethodGenerateJSON, logged.Method)
	require.NotNil(t, logged.Error)
	assert.Contains(t, *logged.Error, "rate limited")
	assert.Nil(t, logged.ThreadID)
}

func TestAuditWrapperSerializesJSONResponse(t *testing.T) {
	sink := &memorySink{}
	wrapper := NewAuditWrapper(&fakeProvider{jsonResp: map[string]interface{}{"verdict": "PASS"}}, sink, slog.Default())
	wrapper.SetContext(ulid.New(), "")

	result, err := wrapper.GenerateJSON(context.Background(), "judge", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "PASS", result["verdict"])

	require.Len(t, sink.logs, 1)
	assert.JSONEq(t, `{"verdict": "PASS"}`, *sink.logs[0].Response)
}

func TestAuditWrapperSwallowsSinkErrors(t *testing.T) {
	sink := &memorySink{err: fmt.Errorf("db down")}
	wrapper := NewAuditWrapper(&fakeProvider{response: "ok"}, sink, slog.Default())
	wrapper.SetContext(ulid.New(), "")

	out, err := wrapper.Generate(context.Background(), "p", Options{})
	require.NoError(t, err, "audit persistence failures never break the call graph")
	assert.Equal(t, "ok", out)
}

func TestAuditWrapperSkipsLoggingWithoutContext(t *testing.T) {
	sink := &memorySink{}
	wrapper := NewAuditWrapper(&fakeProvider{response: "ok"}, sink, slog.Default())

	_, err := wrapper.Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Empty(t, sink.logs)
}

func TestAuditWrapperThreadContextUpdates(t *testing.T) {
	sink := &memorySink{}
	wrapper := NewAuditWrapper(&fakeProvider{response: "ok"}, sink, slog.Default())
	wrapper.SetContext(ulid.New(), "")

	wrapper.SetThreadID("t1")
	_, _ = wrapper.Generate(context.Background(), "p1", Options{})
	wrapper.SetThreadID("t2")
	_, _ = wrapper.Generate(context.Background(), "p2", Options{})
	wrapper.SetThreadID("")
	_, _ = wrapper.Generate(context.Background(), "p3", Options{})

	require.Len(t, sink.logs, 3)
	assert.Equal(t, "t1", *sink.logs[0].ThreadID)
	assert.Equal(t, "t2", *sink.logs[1].ThreadID)
	assert.Nil(t, sink.logs[2].ThreadID)
}
