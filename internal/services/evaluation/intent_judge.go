package evaluation

import (
	"context"
	"fmt"
	"strings"

	"evalforge/internal/infrastructure/providers"
)

var intentJSONSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"predicted_agent": map[string]interface{}{"type": "string"},
		"query_type":      map[string]interface{}{"type": "string"},
		"confidence":      map[string]interface{}{"type": "number"},
		"reasoning":       map[string]interface{}{"type": "string"},
		"all_predictions": map[string]interface{}{"type": "object"},
	},
	"required": []interface{}{"predicted_agent", "query_type", "confidence", "reasoning"},
}

// IntentJudge re-classifies each message independently and checks the
// prediction against the recorded production intent.
type IntentJudge struct {
	llm          providers.Provider
	systemPrompt string
}

func NewIntentJudge(llm providers.Provider, systemPrompt string) *IntentJudge {
	return &IntentJudge{llm: llm, systemPrompt: systemPrompt}
}

// EvaluateMessage classifies one message with up to three turns of history
// for context.
func (j *IntentJudge) EvaluateMessage(ctx context.Context, message ChatMessage, history []ChatMessage) (*IntentEvaluation, error) {
	var historyContext strings.Builder
	if len(history) > 0 {
		historyContext.WriteString("Conversation History:\n")
		recent := history
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		for i, msg := range recent {
			fmt.Fprintf(&historyContext, "Turn %d: User: %s\n", i+1, msg.QueryText)
			fmt.Fprintf(&historyContext, "        Bot: %s...\n\n", truncateText(msg.FinalResponseMessage, 100))
		}
	}

	evalPrompt := fmt.Sprintf(`%s
User Query: "%s"

Classify this query according to the system prompt. Return a JSON response with your
independent classification — do NOT guess or assume what the production system chose.`,
		historyContext.String(), message.QueryText)

	result, err := j.llm.GenerateJSON(ctx, evalPrompt, intentJSONSchema, providers.Options{
		SystemPrompt:  j.systemPrompt,
		ThinkingLevel: "low",
	})
	if err != nil {
		return nil, err
	}

	predictedIntent := getString(result, "predicted_agent")
	if predictedIntent == "" {
		predictedIntent = "Unknown"
	}
	predictedQueryType := getString(result, "query_type")
	if predictedQueryType == "" {
		predictedQueryType = "unknown"
	}

	return &IntentEvaluation{
		Message:            message,
		PredictedIntent:    predictedIntent,
		PredictedQueryType: predictedQueryType,
		Confidence:         getFloat(result, "confidence"),
		IsCorrectIntent:    predictedIntent == message.IntentDetected,
		IsCorrectQueryType: predictedQueryType == message.IntentQueryType,
		Reasoning:          getString(result, "reasoning"),
		AllPredictions:     getMap(result, "all_predictions"),
	}, nil
}

// EvaluateThread evaluates every message of a thread in order.
func (j *IntentJudge) EvaluateThread(ctx context.Context, messages []ChatMessage) ([]IntentEvaluation, error) {
	var evaluations []IntentEvaluation
	for i, message := range messages {
		var history []ChatMessage
		if i > 0 {
			history = messages[:i]
		}
		result, err := j.EvaluateMessage(ctx, message, history)
		if err != nil {
			return evaluations, err
		}
		evaluations = append(evaluations, *result)
	}
	return evaluations, nil
}
