package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalforge/internal/infrastructure/providers"
)

// stubProvider returns canned responses for judge tests.
type stubProvider struct {
	jsonResponse map[string]interface{}
	textResponse string
	err          error
	lastPrompt   string
	lastSystem   string
	calls        int
}

func (s *stubProvider) Name() string  { return "gemini" }
func (s *stubProvider) Model() string { return "test-model" }

func (s *stubProvider) Generate(ctx context.Context, prompt string, opts providers.Options) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	s.lastSystem = opts.SystemPrompt
	return s.textResponse, s.err
}

func (s *stubProvider) GenerateJSON(ctx context.Context, prompt string, schema map[string]interface{}, opts providers.Options) (map[string]interface{}, error) {
	s.calls++
	s.lastPrompt = prompt
	s.lastSystem = opts.SystemPrompt
	return s.jsonResponse, s.err
}

func (s *stubProvider) GenerateWithAudio(ctx context.Context, prompt string, audio []byte, mimeType string, schema map[string]interface{}, opts providers.Options) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	return s.textResponse, s.err
}

func TestParseRuleComplianceBackfillsMissingRules(t *testing.T) {
	rules := []AdversarialRule{
		{RuleID: "rule_a", Section: "Section A"},
		{RuleID: "rule_b", Section: "Section B"},
	}
	raw := []interface{}{
		map[string]interface{}{"rule_id": "rule_a", "followed": false, "evidence": "violated"},
	}

	compliance := parseRuleCompliance(raw, rules)
	require.Len(t, compliance, 2)

	assert.Equal(t, "rule_a", compliance[0].RuleID)
	assert.False(t, compliance[0].Followed)
	assert.Equal(t, "Section A", compliance[0].Section)

	assert.Equal(t, "rule_b", compliance[1].RuleID)
	assert.True(t, compliance[1].Followed)
	assert.Equal(t, "Not evaluated by judge", compliance[1].Evidence)
}

func TestNormalizeVerdict(t *testing.T) {
	assert.Equal(t, "SOFT FAIL", normalizeVerdict("SOFT_FAIL", correctnessVerdicts, "SOFT FAIL"))
	assert.Equal(t, "PASS", normalizeVerdict("PASS", correctnessVerdicts, "SOFT FAIL"))
	assert.Equal(t, "SOFT FAIL", normalizeVerdict("GIBBERISH", correctnessVerdicts, "SOFT FAIL"))
}

func TestCorrectnessJudgeSkipsNonMealSummaries(t *testing.T) {
	stub := &stubProvider{}
	judge := NewCorrectnessJudge(stub, DefaultAdversarialConfig().Rules)

	msg := ChatMessage{QueryText: "hello", FinalResponseMessage: "Hi! How can I help?"}
	result, err := judge.EvaluateMessage(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.Equal(t, "NOT APPLICABLE", result.Verdict)
	assert.Zero(t, stub.calls, "no LLM call expected for non-meal messages")
}

func TestCorrectnessJudgeImageRegrade(t *testing.T) {
	stub := &stubProvider{jsonResponse: map[string]interface{}{
		"verdict":                "HARD_FAIL",
		"calorie_sanity":         map[string]interface{}{"plausible": true},
		"arithmetic_consistency": map[string]interface{}{"consistent": true},
		"quantity_coherence":     map[string]interface{}{"coherent": false, "mismatches": []interface{}{"quantity unclear"}},
		"reasoning":              "quantity does not match",
		"rule_compliance":        []interface{}{},
	}}
	judge := NewCorrectnessJudge(stub, DefaultAdversarialConfig().Rules)

	msg := ChatMessage{
		QueryText:            "log this meal",
		FinalResponseMessage: "Meal Summary: 450 kcal total calories",
		HasImage:             true,
	}
	result, err := judge.EvaluateMessage(context.Background(), msg, nil)
	require.NoError(t, err)

	// Quantity coherence was the only failing check in image context.
	assert.Equal(t, "PASS", result.Verdict)
	assert.True(t, result.HasImageContext)
	assert.Contains(t, result.Reasoning, "quantity coherence check skipped")
}

func TestCorrectnessJudgeImageContextFromHistory(t *testing.T) {
	stub := &stubProvider{jsonResponse: map[string]interface{}{
		"verdict":                "PASS",
		"calorie_sanity":         map[string]interface{}{"plausible": true},
		"arithmetic_consistency": map[string]interface{}{"consistent": true},
		"quantity_coherence":     map[string]interface{}{"coherent": true, "mismatches": []interface{}{}},
		"rule_compliance":        []interface{}{},
	}}
	judge := NewCorrectnessJudge(stub, nil)

	history := []ChatMessage{{QueryText: "here is my food", HasImage: true}}
	msg := ChatMessage{QueryText: "yes", FinalResponseMessage: "Meal Summary: 300 kcal"}
	result, err := judge.EvaluateMessage(context.Background(), msg, history)
	require.NoError(t, err)
	assert.True(t, result.HasImageContext)
}

func TestEfficiencyJudgeDegradesOnError(t *testing.T) {
	stub := &stubProvider{err: assert.AnError}
	judge := NewEfficiencyJudge(stub, nil)

	thread := &ConversationThread{
		ThreadID:     "t1",
		MessageCount: 2,
		Messages: []ChatMessage{
			{QueryText: "log rice", FinalResponseMessage: "Summary"},
			{QueryText: "yes", FinalResponseMessage: "Logged"},
		},
	}
	result, err := judge.EvaluateThread(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, "FRICTION", result.Verdict)
	assert.Contains(t, result.Reasoning, "Judge error")
}

func TestEfficiencyJudgeNormalizesEnums(t *testing.T) {
	stub := &stubProvider{jsonResponse: map[string]interface{}{
		"verdict":        "ACCEPTABLE",
		"task_completed": true,
		"friction_turns": []interface{}{
			map[string]interface{}{"turn": float64(3), "cause": "user", "description": "missing time"},
		},
		"recovery_quality":   "not_needed",
		"abandonment_reason": "",
		"reasoning":          "fine",
		"rule_compliance":    []interface{}{},
	}}
	judge := NewEfficiencyJudge(stub, DefaultAdversarialConfig().Rules)

	thread := &ConversationThread{ThreadID: "t1", MessageCount: 3, Messages: []ChatMessage{{}, {}, {}}}
	result, err := judge.EvaluateThread(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, "NOT NEEDED", result.RecoveryQuality)
	assert.Equal(t, "USER", result.FrictionTurns[0]["cause"])
	// Every efficiency-facing rule has a compliance entry.
	assert.Len(t, result.RuleCompliance, len(RulesForEfficiency(DefaultAdversarialConfig().Rules)))
}

func TestIntentJudgeChecksGroundTruth(t *testing.T) {
	stub := &stubProvider{jsonResponse: map[string]interface{}{
		"predicted_agent": "meal_logging",
		"query_type":      "new_meal",
		"confidence":      0.92,
		"reasoning":       "user describes food",
	}}
	judge := NewIntentJudge(stub, "classify queries")

	msg := ChatMessage{
		QueryText:       "2 rotis for lunch",
		IntentDetected:  "meal_logging",
		IntentQueryType: "edit_meal",
	}
	result, err := judge.EvaluateMessage(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.True(t, result.IsCorrectIntent)
	assert.False(t, result.IsCorrectQueryType)
	assert.Equal(t, 0.92, result.Confidence)
	assert.Equal(t, "classify queries", stub.lastSystem)
}

func TestAdversarialJudgeVerdictAndRuleSubset(t *testing.T) {
	stub := &stubProvider{jsonResponse: map[string]interface{}{
		"verdict":       "SOFT_FAIL",
		"failure_modes": []interface{}{"slightly rounded calories"},
		"reasoning":     "minor issues",
		"goal_achieved": true,
		"rule_compliance": []interface{}{
			map[string]interface{}{"rule_id": "reject_future_time", "followed": true, "evidence": "asked for past time"},
		},
	}}
	judge := NewAdversarialJudge(stub, DefaultAdversarialConfig())

	testCase := AdversarialTestCase{Category: "future_time_rejection", Difficulty: "MEDIUM", GoalType: "meal_logged"}
	transcript := &ConversationTranscript{GoalType: "meal_logged"}
	transcript.AddTurn(ConversationTurn{TurnNumber: 1, UserMessage: "log dosa in 30 minutes", BotResponse: "Please give a past time"})

	result, err := judge.EvaluateTranscript(context.Background(), testCase, transcript)
	require.NoError(t, err)
	assert.Equal(t, "SOFT FAIL", result.Verdict)
	assert.True(t, result.GoalAchieved)

	// rule_compliance covers exactly the rules mapped to the category.
	expected := DefaultAdversarialConfig().RulesForCategory("future_time_rejection")
	assert.Len(t, result.RuleCompliance, len(expected))
}

func TestBuildGenerationSchemaBakesCategoryEnum(t *testing.T) {
	cfg := DefaultAdversarialConfig()
	for i := range cfg.Categories {
		cfg.Categories[i].Enabled = cfg.Categories[i].ID == "composite_dish"
	}

	schema := buildGenerationSchema(cfg.EnabledCategories())
	items := schema["properties"].(map[string]interface{})["test_cases"].(map[string]interface{})["items"].(map[string]interface{})
	category := items["properties"].(map[string]interface{})["category"].(map[string]interface{})
	assert.Equal(t, []interface{}{"composite_dish"}, category["enum"])
}
