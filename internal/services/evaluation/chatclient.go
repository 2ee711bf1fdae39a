package evaluation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ChatClient drives the external chat API's streaming endpoint. Responses
// arrive as SSE frames; every parsed frame is applied to the session state
// reducer and aggregated into a StreamResponse.
type ChatClient struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *slog.Logger
}

// NewChatClient builds a client for the chat API. The auth token is
// mandatory for live testing.
func NewChatClient(baseURL, authToken string, logger *slog.Logger) (*ChatClient, error) {
	if authToken == "" {
		return nil, fmt.Errorf("chat API auth token not set, cannot run live tests")
	}
	return &ChatClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		authToken:  authToken,
		logger:     logger,
	}, nil
}

// StreamMessage posts one user message and consumes the SSE response,
// updating state from every frame.
func (c *ChatClient) StreamMessage(ctx context.Context, query string, state *SessionState) (*StreamResponse, error) {
	payload, err := state.BuildRequestPayload(query)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("token", c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chat API returned status %d", resp.StatusCode)
	}

	result := &StreamResponse{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "data: [DONE]" {
			break
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		jsonStr := strings.TrimSpace(line[len("data: "):])
		if jsonStr == "" || isDigits(jsonStr) {
			continue
		}

		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &chunk); err != nil {
			c.logger.Warn("Failed to parse stream chunk", "chunk", truncateText(jsonStr, 100))
			continue
		}

		state.ApplyChunk(chunk)
		applyChunkToResponse(chunk, result, c.logger)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}

	result.ThreadID = state.ThreadID
	result.SessionID = state.SessionID
	result.ResponseID = state.ResponseID
	return result, nil
}

// applyChunkToResponse aggregates message content and intents from frames.
func applyChunkToResponse(chunk map[string]interface{}, result *StreamResponse, logger *slog.Logger) {
	chunkType, _ := chunk["type"].(string)

	switch chunkType {
	case "intent_classification":
		if intents, ok := chunk["detected_intents"].([]interface{}); ok {
			for _, item := range intents {
				if m, ok := item.(map[string]interface{}); ok {
					result.DetectedIntents = append(result.DetectedIntents, m)
				}
			}
		}
		if multi, ok := chunk["is_multi_intent"].(bool); ok {
			result.IsMultiIntent = multi
		}
	case "agent_response":
		agentResp := map[string]interface{}{
			"agent":   chunk["agent"],
			"message": chunk["message"],
			"success": chunk["success"],
			"data":    chunk["data"],
		}
		result.AgentResponses = append(result.AgentResponses, agentResp)
		success, _ := chunk["success"].(bool)
		if message, ok := chunk["message"].(string); ok && success && message != "" {
			result.FullMessage = message
		}
	case "summary":
		if message, ok := chunk["message"].(string); ok && message != "" {
			result.FullMessage = message
		}
	case "error":
		logger.Error("Stream error frame", "error", chunk["error"])
	}
}

func isDigits(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(s) > 0
}
