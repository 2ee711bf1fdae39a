package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateFirstMessagePayload(t *testing.T) {
	state := NewSessionState("user-1")
	payload, err := state.BuildRequestPayload("hello")
	require.NoError(t, err)
	assert.Equal(t, "user-1", payload["session_id"])
	assert.Equal(t, true, payload["end_session"])
	assert.Nil(t, payload["thread_id"])
}

func TestSessionStateSubsequentMessageRequiresIDs(t *testing.T) {
	state := NewSessionState("user-1")
	state.IsFirstMessage = false
	_, err := state.BuildRequestPayload("hello again")
	require.Error(t, err)

	state.SessionID = "sess-1"
	state.ThreadID = "thread-1"
	payload, err := state.BuildRequestPayload("hello again")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", payload["session_id"])
	assert.Equal(t, "thread-1", payload["thread_id"])
	assert.Equal(t, false, payload["end_session"])
}

func TestApplyChunkSessionContextFlipsFirstMessage(t *testing.T) {
	state := NewSessionState("user-1")
	state.ApplyChunk(map[string]interface{}{
		"type":        "session_context",
		"thread_id":   "t1",
		"session_id":  "s1",
		"response_id": "r1",
	})
	assert.Equal(t, "t1", state.ThreadID)
	assert.Equal(t, "s1", state.SessionID)
	assert.Equal(t, "r1", state.ResponseID)
	assert.False(t, state.IsFirstMessage)
}

func TestApplyChunkPerType(t *testing.T) {
	state := NewSessionState("user-1")

	state.ApplyChunk(map[string]interface{}{"type": "stream_start", "thread_id": "t1"})
	assert.Equal(t, "t1", state.ThreadID)
	assert.True(t, state.IsFirstMessage, "stream_start does not flip first-message")

	state.ApplyChunk(map[string]interface{}{"type": "agent_response", "thread_id": "t2", "response_id": "r2"})
	assert.Equal(t, "t2", state.ThreadID)
	assert.Equal(t, "r2", state.ResponseID)

	state.ApplyChunk(map[string]interface{}{"type": "session_end", "thread_id": "t3"})
	assert.Equal(t, "t3", state.ThreadID)

	// Empty values never clobber existing identifiers.
	state.ApplyChunk(map[string]interface{}{"type": "session_context", "thread_id": ""})
	assert.Equal(t, "t3", state.ThreadID)
}

func TestTranscriptAddTurnAndToText(t *testing.T) {
	transcript := &ConversationTranscript{GoalType: "meal_logged"}
	transcript.AddTurn(ConversationTurn{TurnNumber: 1, UserMessage: "log rice", BotResponse: "how much?", DetectedIntent: "meal_logging"})
	transcript.AddTurn(ConversationTurn{TurnNumber: 2, UserMessage: "one bowl", BotResponse: "Summary"})

	assert.Equal(t, 2, transcript.TotalTurns)
	text := transcript.ToText()
	assert.Contains(t, text, "Turn 1:")
	assert.Contains(t, text, "User: log rice")
	assert.Contains(t, text, "Intent: meal_logging")
	assert.Contains(t, text, "Turn 2:")
}

func TestCheckGoalCompletionByIntent(t *testing.T) {
	resp := &StreamResponse{
		FullMessage:     "Done!",
		DetectedIntents: []map[string]interface{}{{"intent": "meal_confirmation"}},
	}
	assert.True(t, checkGoalCompletion(resp, "meal_logged"))
	assert.False(t, checkGoalCompletion(resp, "question_answered"))
}

func TestCheckGoalCompletionQuestionNeedsLength(t *testing.T) {
	short := &StreamResponse{
		FullMessage:     "ok",
		DetectedIntents: []map[string]interface{}{{"intent": "general_query"}},
	}
	assert.False(t, checkGoalCompletion(short, "question_answered"))

	long := &StreamResponse{
		FullMessage:     "BMI stands for body mass index, a measure of weight relative to height.",
		DetectedIntents: []map[string]interface{}{{"intent": "general_query"}},
	}
	assert.True(t, checkGoalCompletion(long, "question_answered"))
}

func TestCheckGoalCompletionByPattern(t *testing.T) {
	resp := &StreamResponse{FullMessage: "Your meal has been logged to your diary."}
	assert.True(t, checkGoalCompletion(resp, "meal_logged"))

	miss := &StreamResponse{FullMessage: "Please confirm the quantity."}
	assert.False(t, checkGoalCompletion(miss, "meal_logged"))
}
