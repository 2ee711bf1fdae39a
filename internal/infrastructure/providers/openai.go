package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider is the OpenAI-family client. Structured output uses
// JSON-schema response formatting.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float64
}

// NewOpenAIProvider builds an OpenAI client from an API key.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api_key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) buildMessages(prompt string, opts Options) []openai.ChatCompletionMessage {
	var messages []openai.ChatCompletionMessage
	if opts.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return messages
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    p.buildMessages(prompt, opts),
		Temperature: float32(p.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai generate failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}, opts Options) (map[string]interface{}, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    p.buildMessages(prompt, opts),
		Temperature: float32(p.temperature),
	}

	if schema != nil {
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal json schema: %w", err)
		}
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "response",
				Schema: json.RawMessage(raw),
			},
		}
	} else {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai generate_json failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	parsed, repaired, err := parseJSONResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if repaired {
		slog.Warn("Repaired truncated JSON response", "provider", "openai", "model", p.model)
	}
	return parsed, nil
}

func (p *OpenAIProvider) GenerateWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string, schema map[string]interface{}, opts Options) (string, error) {
	return "", fmt.Errorf("openai provider does not support audio input")
}
