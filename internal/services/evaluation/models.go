// Package evaluation contains the evaluation core: the CSV data loader, the
// LLM judges, the deep comparator, the prompt resolver, the bounded-parallel
// engine, the conversation agent, and the per-family pipeline runners.
package evaluation

import (
	"fmt"
	"strings"
	"time"
)

// ChatMessage is a single chat interaction from an exported conversation log.
type ChatMessage struct {
	Timestamp            time.Time `json:"timestamp"`
	UserID               string    `json:"user_id"`
	SessionID            string    `json:"session_id"`
	ThreadID             string    `json:"thread_id"`
	ResponseID           string    `json:"response_id"`
	QueryText            string    `json:"query_text"`
	IntentDetected       string    `json:"intent_detected"`
	IntentQueryType      string    `json:"intent_query_type"`
	FinalResponseMessage string    `json:"final_response_message"`
	HasImage             bool      `json:"has_image"`
	ErrorMessage         string    `json:"error_message,omitempty"`
}

var mealSummaryIndicators = []string{"total calories", "kcal", "meal summary", "consumed at"}

// IsMealSummary reports whether the bot response looks like a meal summary.
func (m *ChatMessage) IsMealSummary() bool {
	resp := strings.ToLower(m.FinalResponseMessage)
	for _, indicator := range mealSummaryIndicators {
		if strings.Contains(resp, indicator) {
			return true
		}
	}
	return false
}

// IsConfirmation reports whether the user message confirms a meal log.
func (m *ChatMessage) IsConfirmation() bool {
	q := strings.ToLower(m.QueryText)
	return strings.Contains(q, "yes, log this meal") || strings.Contains(q, "confirm")
}

// ConversationThread is a complete conversation grouped by thread id.
type ConversationThread struct {
	ThreadID        string        `json:"thread_id"`
	UserID          string        `json:"user_id"`
	Messages        []ChatMessage `json:"messages"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	DurationSeconds float64       `json:"duration_seconds"`
	MessageCount    int           `json:"message_count"`
	HasErrors       bool          `json:"has_errors"`
}

// IsSuccessful reports whether the thread ended in a confirmed action.
func (t *ConversationThread) IsSuccessful() bool {
	if t.HasErrors || len(t.Messages) == 0 {
		return false
	}
	last := strings.ToLower(t.Messages[len(t.Messages)-1].FinalResponseMessage)
	return strings.Contains(last, "successfully") || strings.Contains(last, "logged")
}

// RuleCompliance is a per-rule {followed, evidence} record produced by a
// judge. The set is always filled to full catalog coverage.
type RuleCompliance struct {
	RuleID   string `json:"rule_id"`
	Section  string `json:"section"`
	Followed bool   `json:"followed"`
	Evidence string `json:"evidence,omitempty"`
}

// IntentEvaluation is the IntentJudge result for one message.
type IntentEvaluation struct {
	Message            ChatMessage            `json:"message"`
	PredictedIntent    string                 `json:"predicted_intent"`
	PredictedQueryType string                 `json:"predicted_query_type"`
	Confidence         float64                `json:"confidence"`
	IsCorrectIntent    bool                   `json:"is_correct_intent"`
	IsCorrectQueryType bool                   `json:"is_correct_query_type"`
	Reasoning          string                 `json:"reasoning"`
	AllPredictions     map[string]interface{} `json:"all_predictions,omitempty"`
}

// CorrectnessEvaluation is the CorrectnessJudge result for one message.
type CorrectnessEvaluation struct {
	Message               ChatMessage            `json:"message"`
	Verdict               string                 `json:"verdict"`
	CalorieSanity         map[string]interface{} `json:"calorie_sanity,omitempty"`
	ArithmeticConsistency map[string]interface{} `json:"arithmetic_consistency,omitempty"`
	QuantityCoherence     map[string]interface{} `json:"quantity_coherence,omitempty"`
	Reasoning             string                 `json:"reasoning,omitempty"`
	HasImageContext       bool                   `json:"has_image_context"`
	RuleCompliance        []RuleCompliance       `json:"rule_compliance,omitempty"`
}

// EfficiencyEvaluation is the EfficiencyJudge result for one thread.
type EfficiencyEvaluation struct {
	ThreadID          string                   `json:"thread_id"`
	Verdict           string                   `json:"verdict"`
	TaskCompleted     bool                     `json:"task_completed"`
	FrictionTurns     []map[string]interface{} `json:"friction_turns,omitempty"`
	RecoveryQuality   string                   `json:"recovery_quality"`
	AbandonmentReason string                   `json:"abandonment_reason,omitempty"`
	Reasoning         string                   `json:"reasoning,omitempty"`
	RuleCompliance    []RuleCompliance         `json:"rule_compliance,omitempty"`
}

// ConversationTurn is one request/response pair of a driven conversation.
type ConversationTurn struct {
	TurnNumber     int    `json:"turn_number"`
	UserMessage    string `json:"user_message"`
	BotResponse    string `json:"bot_response"`
	DetectedIntent string `json:"detected_intent,omitempty"`
	ThreadID       string `json:"thread_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ResponseID     string `json:"response_id,omitempty"`
}

// ConversationTranscript is a full driven conversation.
type ConversationTranscript struct {
	Turns             []ConversationTurn `json:"turns"`
	GoalAchieved      bool               `json:"goal_achieved"`
	GoalType          string             `json:"goal_type"`
	TotalTurns        int                `json:"total_turns"`
	AbandonmentReason string             `json:"abandonment_reason,omitempty"`
}

// AddTurn appends a turn and keeps the turn counter in sync.
func (t *ConversationTranscript) AddTurn(turn ConversationTurn) {
	t.Turns = append(t.Turns, turn)
	t.TotalTurns = len(t.Turns)
}

// ToText renders the transcript for judge prompts.
func (t *ConversationTranscript) ToText() string {
	var b strings.Builder
	for _, turn := range t.Turns {
		fmt.Fprintf(&b, "Turn %d:\n", turn.TurnNumber)
		fmt.Fprintf(&b, "  User: %s\n", turn.UserMessage)
		fmt.Fprintf(&b, "  Bot: %s\n", turn.BotResponse)
		if turn.DetectedIntent != "" {
			fmt.Fprintf(&b, "  Intent: %s\n", turn.DetectedIntent)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// AdversarialTestCase is one synthetic stress-test input.
type AdversarialTestCase struct {
	Category         string `json:"category"`
	SyntheticInput   string `json:"synthetic_input"`
	ExpectedBehavior string `json:"expected_behavior"`
	Difficulty       string `json:"difficulty"` // EASY | MEDIUM | HARD
	GoalType         string `json:"goal_type"`
}

// AdversarialResult is the judged outcome of one stress-test conversation.
type AdversarialResult struct {
	TestCase       AdversarialTestCase    `json:"test_case"`
	Transcript     ConversationTranscript `json:"transcript"`
	Verdict        string                 `json:"verdict"`
	FailureModes   []string               `json:"failure_modes,omitempty"`
	Reasoning      string                 `json:"reasoning,omitempty"`
	GoalAchieved   bool                   `json:"goal_achieved"`
	RuleCompliance []RuleCompliance       `json:"rule_compliance,omitempty"`
}

// SessionState tracks chat-API session identifiers across turns. ApplyChunk
// is a pure reducer over stream chunk types, kept free of I/O so it can be
// unit-tested without an HTTP stub.
type SessionState struct {
	UserID         string
	ThreadID       string
	SessionID      string
	ResponseID     string
	IsFirstMessage bool
}

// NewSessionState starts a fresh session for a simulated user.
func NewSessionState(userID string) *SessionState {
	return &SessionState{UserID: userID, IsFirstMessage: true}
}

// BuildRequestPayload builds the chat-API request body. The first message
// seeds session_id with the user id and ends any previous session; later
// messages require both identifiers.
func (s *SessionState) BuildRequestPayload(query string) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"query":   query,
		"user_id": s.UserID,
		"context": map[string]interface{}{"additionalProp1": map[string]interface{}{}},
		"stream":  false,
	}
	if s.IsFirstMessage {
		payload["session_id"] = s.UserID
		payload["end_session"] = true
		return payload, nil
	}
	if s.SessionID == "" || s.ThreadID == "" {
		return nil, fmt.Errorf("session_id and thread_id required for subsequent messages")
	}
	payload["session_id"] = s.SessionID
	payload["thread_id"] = s.ThreadID
	payload["end_session"] = false
	return payload, nil
}

// ApplyChunk syncs identifiers from whichever chunk type carries them.
func (s *SessionState) ApplyChunk(chunk map[string]interface{}) {
	chunkType, _ := chunk["type"].(string)

	getStr := func(key string) string {
		v, _ := chunk[key].(string)
		return v
	}

	switch chunkType {
	case "stream_start":
		if v := getStr("thread_id"); v != "" {
			s.ThreadID = v
		}
	case "session_context":
		if v := getStr("thread_id"); v != "" {
			s.ThreadID = v
		}
		if v := getStr("session_id"); v != "" {
			s.SessionID = v
		}
		if v := getStr("response_id"); v != "" {
			s.ResponseID = v
		}
		if s.IsFirstMessage {
			s.IsFirstMessage = false
		}
	case "session_start":
		if v := getStr("thread_id"); v != "" {
			s.ThreadID = v
		}
	case "agent_response":
		if v := getStr("thread_id"); v != "" {
			s.ThreadID = v
		}
		if v := getStr("response_id"); v != "" {
			s.ResponseID = v
		}
	case "session_end":
		if v := getStr("thread_id"); v != "" {
			s.ThreadID = v
		}
	}
}

// StreamResponse aggregates one chat-API streamed exchange.
type StreamResponse struct {
	FullMessage     string
	ThreadID        string
	SessionID       string
	ResponseID      string
	DetectedIntents []map[string]interface{}
	AgentResponses  []map[string]interface{}
	IsMultiIntent   bool
}
