// Package providers defines the LLM provider interface shared by every
// evaluator, plus clients for the Google and OpenAI families and the audit
// wrapper that records one api_log row per call.
package providers

import (
	"context"
	"fmt"

	"evalforge/pkg/jsonrepair"
)

// Method names recorded in api_logs.
const (
	MethodGenerate          = "generate"
	MethodGenerateJSON      = "generate_json"
	MethodGenerateWithAudio = "generate_with_audio"
)

// Options carries per-call hints.
type Options struct {
	SystemPrompt  string
	ThinkingLevel string // minimal | low | medium | high (Google family only)
}

// Provider is the common surface all LLM clients implement.
type Provider interface {
	// Name identifies the provider family ("gemini" or "openai").
	Name() string
	// Model is the resolved model name.
	Model() string

	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}, opts Options) (map[string]interface{}, error)
	// GenerateWithAudio sends audio bytes alongside the prompt and returns
	// the raw response text for the caller to parse.
	GenerateWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string, schema map[string]interface{}, opts Options) (string, error)
}

// Config configures a provider instance.
type Config struct {
	Provider           string
	APIKey             string
	Model              string
	Temperature        float64
	ServiceAccountPath string
}

// New creates a provider for the named family.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(ctx, cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// parseJSONResponse applies the direct-parse / extract / repair cascade.
// The repaired flag is returned so callers can log a diagnostic.
func parseJSONResponse(text string) (map[string]interface{}, bool, error) {
	return jsonrepair.SafeParse(text)
}
