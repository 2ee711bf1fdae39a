package evaluation

import (
	"context"
	"fmt"
	"strings"

	"evalforge/internal/infrastructure/providers"
)

const correctnessJudgePrompt = `You are a strict nutritional accuracy auditor for a health chatbot.
You will receive a USER INPUT and the BOT RESPONSE.  Your job is to evaluate whether the
meal summary in the bot response is factually defensible.

## IMPORTANT: Image-based meals
When the user message is tagged with [IMAGE ATTACHED], the user sent a photo of their food.
The bot analyzed the image to identify foods and quantities — you do NOT have access to the
original image.  In these cases:
- You CANNOT verify food-quantity coherence (Check 3) because the ground truth is in the image, not in the text.
- You CANNOT flag food names as "hallucinated" or "mismatched" — the bot identified them from the image.
- You CAN still check calorie sanity (Check 1) and arithmetic consistency (Check 2).
- If the calories and arithmetic are plausible, verdict should be **PASS** even if the user text
  is vague (e.g. "Log this meal for me").
- Only fail image-based meals for genuinely implausible calorie values or broken arithmetic.

## Checks to perform

### 1. Calorie Sanity
- Is the **total calorie** value plausible for the foods and quantities described?
- A single food item should rarely exceed 2000 Kcal.
- A single meal total should rarely exceed 4000 Kcal.
- Values like 10,000+ Kcal for everyday foods are ALWAYS wrong.

### 2. Internal Arithmetic Consistency
- Do the **per-item calorie values add up** to the stated total? (tolerance ±15 Kcal or ±5%, whichever is larger)
- Do the **macros roughly account** for the calories?  Protein×4 + Carbs×4 + Fat×9 ≈ Total Calories (tolerance ±20%).

### 3. Food-Quantity Coherence
- Does the **quantity shown in the response** match what the user stated?
- **SKIP this check if the user message has [IMAGE ATTACHED]** — food names come from the image, not text.

## Verdict (pick exactly one)
- **PASS** — All applicable checks pass.
- **SOFT_FAIL** — Minor issues.
- **HARD_FAIL** — Clear nutritional inaccuracy.
- **CRITICAL** — Order-of-magnitude calorie error or dangerous mis-statement.
- **NOT_APPLICABLE** — The bot response is NOT a meal summary.

## Production prompt rules
Evaluate whether the bot response follows the specific production prompt rules listed below.

## JSON output schema
Return ONLY valid JSON:
{
  "verdict": "PASS | SOFT_FAIL | HARD_FAIL | CRITICAL | NOT_APPLICABLE",
  "calorie_sanity": {"plausible": true/false, "stated_total_kcal": <number or null>, "expected_range_low": <number or null>, "expected_range_high": <number or null>, "reason": "<brief>"},
  "arithmetic_consistency": {"consistent": true/false, "items_sum_kcal": <number or null>, "stated_total_kcal": <number or null>, "macro_calories_estimate": <number or null>, "reason": "<brief>"},
  "quantity_coherence": {"coherent": true/false, "mismatches": ["<description>"]},
  "reasoning": "<2-3 sentence overall assessment>",
  "rule_compliance": [{"rule_id": "<exact rule_id>", "followed": true | false, "evidence": "<1 sentence>"}]
}`

var correctnessJSONSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"verdict": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"PASS", "SOFT_FAIL", "HARD_FAIL", "CRITICAL", "NOT_APPLICABLE"},
		},
		"calorie_sanity": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"plausible":           map[string]interface{}{"type": "boolean"},
				"stated_total_kcal":   map[string]interface{}{"type": "number"},
				"expected_range_low":  map[string]interface{}{"type": "number"},
				"expected_range_high": map[string]interface{}{"type": "number"},
				"reason":              map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"plausible", "reason"},
		},
		"arithmetic_consistency": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"consistent":              map[string]interface{}{"type": "boolean"},
				"items_sum_kcal":          map[string]interface{}{"type": "number"},
				"stated_total_kcal":       map[string]interface{}{"type": "number"},
				"macro_calories_estimate": map[string]interface{}{"type": "number"},
				"reason":                  map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"consistent", "reason"},
		},
		"quantity_coherence": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"coherent":   map[string]interface{}{"type": "boolean"},
				"mismatches": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
			"required": []interface{}{"coherent", "mismatches"},
		},
		"reasoning":       map[string]interface{}{"type": "string"},
		"rule_compliance": ruleComplianceSchema,
	},
	"required": []interface{}{"verdict", "calorie_sanity", "arithmetic_consistency", "quantity_coherence", "reasoning", "rule_compliance"},
}

var ruleComplianceSchema = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule_id":  map[string]interface{}{"type": "string"},
			"followed": map[string]interface{}{"type": "boolean"},
			"evidence": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"rule_id", "followed", "evidence"},
	},
}

var correctnessVerdicts = []string{"PASS", "SOFT FAIL", "HARD FAIL", "CRITICAL", "NOT APPLICABLE"}

// CorrectnessJudge audits meal-summary responses: calorie sanity, macro
// arithmetic, and quantity coherence, with image-context suppression of the
// quantity check.
type CorrectnessJudge struct {
	llm   providers.Provider
	rules []AdversarialRule
}

func NewCorrectnessJudge(llm providers.Provider, rules []AdversarialRule) *CorrectnessJudge {
	return &CorrectnessJudge{llm: llm, rules: RulesForCorrectness(rules)}
}

// EvaluateMessage evaluates one message. Non-meal-summary messages short
// circuit to NOT APPLICABLE without an LLM call.
func (j *CorrectnessJudge) EvaluateMessage(ctx context.Context, message ChatMessage, history []ChatMessage) (*CorrectnessEvaluation, error) {
	if !message.IsMealSummary() {
		return &CorrectnessEvaluation{
			Message:   message,
			Verdict:   "NOT APPLICABLE",
			Reasoning: "Response is not a meal summary.",
		}, nil
	}

	hasImageContext := message.HasImage
	if !hasImageContext && len(history) > 0 {
		recent := history
		if len(recent) > 2 {
			recent = recent[len(recent)-2:]
		}
		for _, m := range recent {
			if m.HasImage {
				hasImageContext = true
				break
			}
		}
	}

	var historyBlock strings.Builder
	if len(history) > 0 {
		recent := history
		if len(recent) > 4 {
			recent = recent[len(recent)-4:]
		}
		for i, m := range recent {
			imgTag := ""
			if m.HasImage {
				imgTag = " [IMAGE ATTACHED]"
			}
			fmt.Fprintf(&historyBlock, "Turn %d — User: %s%s\nBot: %s\n\n",
				i+1, m.QueryText, imgTag, truncateText(m.FinalResponseMessage, 300))
		}
	}

	imgTag := ""
	if message.HasImage {
		imgTag = " [IMAGE ATTACHED]"
	}
	imageNote := ""
	if hasImageContext {
		imageNote = "\n**NOTE:** This meal was identified from a user-uploaded image. " +
			"Only check calorie sanity and arithmetic.\n"
	}

	evalPrompt := fmt.Sprintf(
		"### Conversation history (for context)\n%s\n"+
			"### Current turn\n**User input:** %s%s\n\n"+
			"**Bot response:**\n%s\n\n"+
			"%s%s\n"+
			"Evaluate the bot response now. Check EACH rule above.",
		historyBlock.String(), message.QueryText, imgTag,
		message.FinalResponseMessage, imageNote, formatRulesBlock(j.rules))

	result, err := j.llm.GenerateJSON(ctx, evalPrompt, correctnessJSONSchema, providers.Options{
		SystemPrompt: correctnessJudgePrompt,
	})
	if err != nil {
		return nil, err
	}
	return j.parseResult(message, result, hasImageContext), nil
}

// EvaluateThread evaluates every message of a thread in order.
func (j *CorrectnessJudge) EvaluateThread(ctx context.Context, thread *ConversationThread) ([]CorrectnessEvaluation, error) {
	var results []CorrectnessEvaluation
	for i, msg := range thread.Messages {
		var history []ChatMessage
		if i > 0 {
			history = thread.Messages[:i]
		}
		result, err := j.EvaluateMessage(ctx, msg, history)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
	}
	return results, nil
}

func (j *CorrectnessJudge) parseResult(message ChatMessage, raw map[string]interface{}, hasImageContext bool) *CorrectnessEvaluation {
	verdict := normalizeVerdict(getString(raw, "verdict"), correctnessVerdicts, "SOFT FAIL")
	reasoning := getString(raw, "reasoning")

	// Image context suppresses quantity coherence: when that was the only
	// failing check, the verdict is re-graded to PASS.
	if hasImageContext && (verdict == "HARD FAIL" || verdict == "CRITICAL") {
		qc := getMap(raw, "quantity_coherence")
		if !getBool(qc, "coherent", true) {
			calorieOK := getBool(getMap(raw, "calorie_sanity"), "plausible", true)
			arithmeticOK := getBool(getMap(raw, "arithmetic_consistency"), "consistent", true)
			if calorieOK && arithmeticOK {
				verdict = "PASS"
				reasoning = "[Image-based meal — quantity coherence check skipped] " + reasoning
			}
		}
	}

	return &CorrectnessEvaluation{
		Message:               message,
		Verdict:               verdict,
		CalorieSanity:         getMap(raw, "calorie_sanity"),
		ArithmeticConsistency: getMap(raw, "arithmetic_consistency"),
		QuantityCoherence:     getMap(raw, "quantity_coherence"),
		Reasoning:             reasoning,
		HasImageContext:       hasImageContext,
		RuleCompliance:        parseRuleCompliance(raw["rule_compliance"], j.rules),
	}
}
