package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-3-flash-preview"

// GeminiProvider is the Google-family client. It supports API-key and
// service-account credentials and accepts a thinking_level hint.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	temperature float64
	authMethod  string
}

// NewGeminiProvider builds a Gemini client from either an API key or a
// service-account file.
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{}
	authMethod := "api_key"

	switch {
	case cfg.ServiceAccountPath != "":
		if _, err := os.Stat(cfg.ServiceAccountPath); err != nil {
			return nil, fmt.Errorf("service account file not found: %s", cfg.ServiceAccountPath)
		}
		// The SDK picks up application-default credentials from the env.
		os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.ServiceAccountPath)
		clientCfg.Backend = genai.BackendVertexAI
		authMethod = "service_account"
	case cfg.APIKey != "":
		clientCfg.Backend = genai.BackendGeminiAPI
		clientCfg.APIKey = cfg.APIKey
	default:
		return nil, fmt.Errorf("either api_key or service_account_path must be provided")
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
		authMethod:  authMethod,
	}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

func (p *GeminiProvider) generationConfig(opts Options) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(p.temperature)),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingLevel: thinkingLevel(opts.ThinkingLevel),
		},
	}
	if opts.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

func thinkingLevel(level string) genai.ThinkingLevel {
	switch strings.ToLower(level) {
	case "high":
		return genai.ThinkingLevelHigh
	case "medium":
		return genai.ThinkingLevelMedium
	default:
		// "minimal" and "low" both map onto the cheapest supported level.
		return genai.ThinkingLevelLow
	}
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), p.generationConfig(opts))
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	return resp.Text(), nil
}

func (p *GeminiProvider) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}, opts Options) (map[string]interface{}, error) {
	cfg := p.generationConfig(opts)
	cfg.ResponseMIMEType = "application/json"
	if schema != nil {
		cfg.ResponseJsonSchema = schema
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate_json failed: %w", err)
	}

	parsed, repaired, err := parseJSONResponse(resp.Text())
	if err != nil {
		return nil, err
	}
	if repaired {
		slog.Warn("Repaired truncated JSON response", "provider", "gemini", "model", p.model)
	}
	return parsed, nil
}

func (p *GeminiProvider) GenerateWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string, schema map[string]interface{}, opts Options) (string, error) {
	cfg := p.generationConfig(opts)
	if schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseJsonSchema = schema
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate_with_audio failed: %w", err)
	}
	return resp.Text(), nil
}
