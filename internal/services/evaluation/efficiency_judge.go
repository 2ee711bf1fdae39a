package evaluation

import (
	"context"
	"fmt"
	"strings"

	"evalforge/internal/infrastructure/providers"
)

const efficiencyJudgePrompt = `You are an expert conversation-quality auditor for a health-assistant chatbot
that logs meals.  You will receive a COMPLETE conversation thread (all turns, in order).

## Context about this chatbot
- The ideal meal-logging flow is **2 turns**: user describes food → bot shows summary + confirm chip → done.
- Extra turns may happen because:
  (a) The user genuinely didn't provide required info (time, quantity) — this is ACCEPTABLE friction.
  (b) The bot failed to parse the user's input correctly — this is BOT friction.
  (c) The bot produced wrong calorie / nutrition values and the user corrected it — this is BOT friction.
  (d) The bot showed wrong foods, wrong quantities, or duplicated items — this is BOT friction.

## Production rules — CORRECT vs INCORRECT bot behaviors

**CORRECT behaviors (NOT friction — do NOT penalize these):**
- Bot asking for meal TIME when user didn't provide it
- Bot asking for QUANTITY when ambiguous
- Bot rejecting future times
- Bot asking what FOOD when user only provides quantity or time
- Bot treating composite dishes as single items
- Bot asking for confirmation before logging

**BOT ERRORS (these ARE friction — penalize these):**
- Bot asking for time/quantity that was ALREADY provided
- Bot accepting future times without questioning
- Bot assuming/guessing food when user only gave quantity or time
- Bot splitting composite dishes into separate items
- Bot showing wrong calorie values or wrong food extraction
- Bot ignoring user corrections or repeating the same error

## Your evaluation tasks

### 1. Task Completion
Did the user achieve what they wanted?

### 2. Friction Analysis
For each turn beyond the first two, determine: user caused or bot caused?

### 3. Recovery Quality
When the user corrected the bot, did it fix the issue?

### 4. Abandonment Root Cause
If conversation ended WITHOUT successful logging, why?

## Verdict
- **EFFICIENT** — ≤2 turns, clean completion.
- **ACCEPTABLE** — Extra turns, but ALL caused by genuinely missing user info.
- **FRICTION** — At least one extra turn caused by bot error.
- **BROKEN** — User correction wasn't applied, or abandoned due to bot failure.

## JSON output
Return ONLY valid JSON:
{
  "verdict": "EFFICIENT | ACCEPTABLE | FRICTION | BROKEN",
  "task_completed": true/false,
  "friction_turns": [{"turn": <number>, "cause": "user | bot", "description": "<1 sentence>"}],
  "recovery_quality": "good | partial | failed | not_needed",
  "abandonment_reason": "<empty string if completed>",
  "reasoning": "<2-3 sentence assessment>",
  "rule_compliance": [{"rule_id": "<exact rule_id>", "followed": true | false, "evidence": "<1 sentence>"}]
}`

var efficiencyJSONSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"verdict": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"EFFICIENT", "ACCEPTABLE", "FRICTION", "BROKEN"},
		},
		"task_completed": map[string]interface{}{"type": "boolean"},
		"friction_turns": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"turn":        map[string]interface{}{"type": "integer"},
					"cause":       map[string]interface{}{"type": "string", "enum": []interface{}{"user", "bot"}},
					"description": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"turn", "cause", "description"},
			},
		},
		"recovery_quality": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"good", "partial", "failed", "not_needed"},
		},
		"abandonment_reason": map[string]interface{}{"type": "string"},
		"reasoning":          map[string]interface{}{"type": "string"},
		"rule_compliance":    ruleComplianceSchema,
	},
	"required": []interface{}{"verdict", "task_completed", "friction_turns", "recovery_quality", "abandonment_reason", "reasoning", "rule_compliance"},
}

var efficiencyVerdicts = []string{"EFFICIENT", "ACCEPTABLE", "FRICTION", "BROKEN"}

// EfficiencyJudge evaluates whole threads: completion, friction attribution
// (user-caused vs bot-caused), recovery, and abandonment cause.
type EfficiencyJudge struct {
	llm   providers.Provider
	rules []AdversarialRule
}

func NewEfficiencyJudge(llm providers.Provider, rules []AdversarialRule) *EfficiencyJudge {
	return &EfficiencyJudge{llm: llm, rules: RulesForEfficiency(rules)}
}

// EvaluateThread judges a complete conversation thread. Judge failures
// degrade to a FRICTION verdict rather than an error so one bad call does
// not sink the batch row.
func (j *EfficiencyJudge) EvaluateThread(ctx context.Context, thread *ConversationThread) (*EfficiencyEvaluation, error) {
	evalPrompt := fmt.Sprintf(
		"### Conversation thread (%d turns, %.0fs)\n\n%s\n\n%s\nEvaluate this conversation now. Check EACH rule above.",
		thread.MessageCount, thread.DurationSeconds,
		j.formatTranscript(thread), formatRulesBlock(j.rules))

	result, err := j.llm.GenerateJSON(ctx, evalPrompt, efficiencyJSONSchema, providers.Options{
		SystemPrompt: efficiencyJudgePrompt,
	})
	if err != nil {
		return &EfficiencyEvaluation{
			ThreadID:        thread.ThreadID,
			Verdict:         "FRICTION",
			TaskCompleted:   false,
			RecoveryQuality: "NOT NEEDED",
			Reasoning:       fmt.Sprintf("Judge error: %v", err),
		}, nil
	}
	return j.parseResult(thread, result), nil
}

func (j *EfficiencyJudge) formatTranscript(thread *ConversationThread) string {
	var blocks []string
	for i, msg := range thread.Messages {
		imgTag := ""
		if msg.HasImage {
			imgTag = " [image attached]"
		}
		response := msg.FinalResponseMessage
		suffix := ""
		if len(response) > 1200 {
			response = response[:1200]
			suffix = "..."
		}
		blocks = append(blocks, fmt.Sprintf(
			"**Turn %d** (%s) [%s/%s]\n  User: %s%s\n  Bot: %s%s",
			i+1, msg.Timestamp.Format("15:04:05"), msg.IntentDetected, msg.IntentQueryType,
			msg.QueryText, imgTag, response, suffix))
	}
	return strings.Join(blocks, "\n\n")
}

func (j *EfficiencyJudge) parseResult(thread *ConversationThread, raw map[string]interface{}) *EfficiencyEvaluation {
	verdict := getString(raw, "verdict")
	valid := false
	for _, v := range efficiencyVerdicts {
		if verdict == v {
			valid = true
			break
		}
	}
	if !valid {
		verdict = "FRICTION"
	}

	recovery := getString(raw, "recovery_quality")
	if recovery == "" {
		recovery = "not needed"
	}
	recovery = strings.ReplaceAll(strings.ToUpper(recovery), "_", " ")

	var frictionTurns []map[string]interface{}
	if items, ok := raw["friction_turns"].([]interface{}); ok {
		for _, item := range items {
			if turn, ok := item.(map[string]interface{}); ok {
				if cause, ok := turn["cause"].(string); ok {
					turn["cause"] = strings.ReplaceAll(strings.ToUpper(cause), "_", " ")
				}
				frictionTurns = append(frictionTurns, turn)
			}
		}
	}

	return &EfficiencyEvaluation{
		ThreadID:          thread.ThreadID,
		Verdict:           verdict,
		TaskCompleted:     getBool(raw, "task_completed", false),
		FrictionTurns:     frictionTurns,
		RecoveryQuality:   recovery,
		AbandonmentReason: getString(raw, "abandonment_reason"),
		Reasoning:         getString(raw, "reasoning"),
		RuleCompliance:    parseRuleCompliance(raw["rule_compliance"], j.rules),
	}
}
