package evaluation

import (
	"context"
	"fmt"
	"strings"

	"evalforge/internal/infrastructure/providers"
)

const adversarialJudgePrompt = `You are evaluating a health-assistant chatbot based on a REAL conversation transcript.

## Your task
1. Review the ACTUAL CONVERSATION TRANSCRIPT below.
2. For EACH production rule listed, determine if the system FOLLOWED or VIOLATED it.
3. Evaluate whether the system handled the adversarial input correctly overall.
4. Check if the goal was achieved.

## Verdict
- **PASS** — Handled correctly, goal achieved.
- **SOFT_FAIL** — Minor issues, goal achieved.
- **HARD_FAIL** — Clear failure.
- **CRITICAL** — Dangerous failure.

## Difficulty calibration
- **easy** — Zero tolerance. Any failure is concerning.
- **medium** — Minor issues acceptable. SOFT_FAIL is fine if goal achieved.
- **hard** — SOFT_FAIL is a good result. Only HARD_FAIL/CRITICAL means system broke.

## JSON output
Return ONLY valid JSON:
{
  "verdict": "PASS | SOFT_FAIL | HARD_FAIL | CRITICAL",
  "failure_modes": ["<each failure mode detected>"],
  "reasoning": "<2-3 sentence assessment>",
  "goal_achieved": true | false,
  "rule_compliance": [{"rule_id": "<exact rule_id>", "followed": true | false, "evidence": "<1 sentence>"}]
}`

var adversarialJudgeSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"verdict": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"PASS", "SOFT_FAIL", "HARD_FAIL", "CRITICAL"},
		},
		"failure_modes":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"reasoning":       map[string]interface{}{"type": "string"},
		"goal_achieved":   map[string]interface{}{"type": "boolean"},
		"rule_compliance": ruleComplianceSchema,
	},
	"required": []interface{}{"verdict", "failure_modes", "reasoning", "goal_achieved", "rule_compliance"},
}

var adversarialVerdicts = []string{"PASS", "SOFT FAIL", "HARD FAIL", "CRITICAL"}

// AdversarialJudge generates stress-test cases from the active config's
// enabled categories and judges conversation transcripts against the rule
// subset mapped to each case's category.
type AdversarialJudge struct {
	llm    providers.Provider
	config *AdversarialConfig
}

func NewAdversarialJudge(llm providers.Provider, config *AdversarialConfig) *AdversarialJudge {
	if config == nil {
		config = DefaultAdversarialConfig()
	}
	return &AdversarialJudge{llm: llm, config: config}
}

// Config exposes the snapshotted config the judge was built with.
func (j *AdversarialJudge) Config() *AdversarialConfig {
	return j.config
}

// buildGenerationPrompt renders the test-case generation prompt from the
// enabled categories.
func buildGenerationPrompt(categories []AdversarialCategory, count int, extraInstructions string) string {
	var catSections []string
	for i, cat := range categories {
		catSections = append(catSections, fmt.Sprintf("### %d. %s\n%s", i+1, cat.ID, cat.Description))
	}

	extra := ""
	if strings.TrimSpace(extraInstructions) != "" {
		extra = fmt.Sprintf("\n\n## Additional instructions\n%s\n", strings.TrimSpace(extraInstructions))
	}

	return fmt.Sprintf(`You are a QA engineer designing adversarial test inputs for a health-assistant
chatbot that logs meals. Generate test cases that stress-test the system's ability to handle
tricky user inputs.

## CRITICAL: What "synthetic_input" means
synthetic_input is the user's OPENING message — the very first thing sent to the chatbot.
NEVER put multi-turn behavior into synthetic_input. It must be a single, self-contained first message.

## Categories

%s

## Difficulty levels
- **easy**: Straightforward, one minor ambiguity.
- **medium**: Moderately tricky, casual language.
- **hard**: Genuinely adversarial, multiple ambiguities.

## Instructions
- Generate exactly %d test cases across all %d categories (roughly evenly distributed).
- Distribute difficulty roughly evenly.
- Specify goal_type: "meal_logged" for meal tests, "question_answered" for QnA tests.
%s
## JSON output
Return ONLY valid JSON:
{
  "test_cases": [
    {
      "category": "<category>",
      "synthetic_input": "<user's FIRST message only>",
      "expected_behavior": "<what the system should do>",
      "difficulty": "easy | medium | hard",
      "goal_type": "meal_logged"
    }
  ]
}`, strings.Join(catSections, "\n\n"), count, len(categories), extra)
}

// buildGenerationSchema bakes the enabled category ids into the generation
// schema's enum so the model cannot invent categories.
func buildGenerationSchema(categories []AdversarialCategory) map[string]interface{} {
	var catIDs []interface{}
	for _, cat := range categories {
		catIDs = append(catIDs, cat.ID)
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"test_cases": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"category":          map[string]interface{}{"type": "string", "enum": catIDs},
						"synthetic_input":   map[string]interface{}{"type": "string"},
						"expected_behavior": map[string]interface{}{"type": "string"},
						"difficulty":        map[string]interface{}{"type": "string", "enum": []interface{}{"easy", "medium", "hard"}},
						"goal_type":         map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"category", "synthetic_input", "expected_behavior", "difficulty", "goal_type"},
				},
			},
		},
		"required": []interface{}{"test_cases"},
	}
}

// GenerateTestCases asks the LLM for count synthetic first messages across
// the enabled categories.
func (j *AdversarialJudge) GenerateTestCases(ctx context.Context, count int, extraInstructions string) ([]AdversarialTestCase, error) {
	categories := j.config.EnabledCategories()
	genPrompt := buildGenerationPrompt(categories, count, extraInstructions)
	genSchema := buildGenerationSchema(categories)

	raw, err := j.llm.GenerateJSON(ctx, genPrompt, genSchema, providers.Options{ThinkingLevel: "low"})
	if err != nil {
		return nil, fmt.Errorf("failed to generate adversarial test cases: %w", err)
	}

	items := extractCaseList(raw)
	var cases []AdversarialTestCase
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		category := getString(entry, "category")
		if category == "" && len(categories) > 0 {
			category = categories[0].ID
		}
		goalType := getString(entry, "goal_type")
		if goalType == "" {
			goalType = "meal_logged"
		}
		difficulty := strings.ToUpper(getString(entry, "difficulty"))
		if difficulty == "" {
			difficulty = "MEDIUM"
		}
		cases = append(cases, AdversarialTestCase{
			Category:         category,
			SyntheticInput:   getString(entry, "synthetic_input"),
			ExpectedBehavior: getString(entry, "expected_behavior"),
			Difficulty:       difficulty,
			GoalType:         goalType,
		})
	}

	if len(cases) > count {
		cases = cases[:count]
	}
	return cases, nil
}

func extractCaseList(raw map[string]interface{}) []interface{} {
	for _, key := range []string{"test_cases", "cases", "items", "results"} {
		if list, ok := raw[key].([]interface{}); ok {
			return list
		}
	}
	return nil
}

// RulesForCategory returns the config's rule subset for a category.
func (j *AdversarialJudge) RulesForCategory(category string) []AdversarialRule {
	return j.config.RulesForCategory(category)
}

// EvaluateTranscript judges a driven conversation against the case's rules.
func (j *AdversarialJudge) EvaluateTranscript(ctx context.Context, testCase AdversarialTestCase, transcript *ConversationTranscript) (*AdversarialResult, error) {
	rules := j.RulesForCategory(testCase.Category)

	abandonment := transcript.AbandonmentReason
	if abandonment == "" {
		abandonment = "N/A"
	}

	evalPrompt := fmt.Sprintf(
		"### Adversarial test case\n"+
			"**Category:** %s\n"+
			"**Difficulty:** %s\n"+
			"**Expected behavior:** %s\n"+
			"**Goal type:** %s\n\n"+
			"%s\n"+
			"### ACTUAL CONVERSATION TRANSCRIPT (%d turns)\n%s\n\n"+
			"**Goal achieved (by agent):** %t\n"+
			"**Abandonment reason:** %s\n\n"+
			"Now judge the system's performance. Evaluate EACH rule above.",
		testCase.Category, testCase.Difficulty, testCase.ExpectedBehavior, testCase.GoalType,
		formatRulesBlock(rules), transcript.TotalTurns, transcript.ToText(),
		transcript.GoalAchieved, abandonment)

	result, err := j.llm.GenerateJSON(ctx, evalPrompt, adversarialJudgeSchema, providers.Options{
		SystemPrompt:  adversarialJudgePrompt,
		ThinkingLevel: "low",
	})
	if err != nil {
		return nil, err
	}

	var failureModes []string
	if items, ok := result["failure_modes"].([]interface{}); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				failureModes = append(failureModes, s)
			}
		}
	}

	return &AdversarialResult{
		TestCase:       testCase,
		Transcript:     *transcript,
		Verdict:        normalizeVerdict(getString(result, "verdict"), adversarialVerdicts, "HARD FAIL"),
		FailureModes:   failureModes,
		Reasoning:      getString(result, "reasoning"),
		GoalAchieved:   getBool(result, "goal_achieved", transcript.GoalAchieved),
		RuleCompliance: parseRuleCompliance(result["rule_compliance"], rules),
	}, nil
}
