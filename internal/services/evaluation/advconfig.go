package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"evalforge/internal/core/domain/settings"
)

// Settings location of the adversarial config document.
const (
	AdversarialConfigAppID = "kaira-bot"
	AdversarialConfigKey   = "adversarial-config"
	AdversarialConfigVersion = 1
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// AdversarialCategory is a single adversarial test category.
type AdversarialCategory struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
	Enabled     bool   `json:"enabled"`
}

// AdversarialRule is a single production prompt rule used for judging.
type AdversarialRule struct {
	RuleID     string   `json:"rule_id"`
	Section    string   `json:"section"`
	RuleText   string   `json:"rule_text"`
	Categories []string `json:"categories"`
}

// AdversarialConfig is the complete adversarial evaluation configuration,
// persisted as one settings document and snapshotted into a run's
// batch_metadata at run start for reproducibility.
type AdversarialConfig struct {
	Version    int                   `json:"version"`
	Categories []AdversarialCategory `json:"categories"`
	Rules      []AdversarialRule     `json:"rules"`
}

// Validate enforces referential integrity across categories and rules.
func (c *AdversarialConfig) Validate() error {
	catIDs := map[string]bool{}
	for _, cat := range c.Categories {
		if !idPattern.MatchString(cat.ID) {
			return fmt.Errorf("category id must be snake_case alphanumeric: %q", cat.ID)
		}
		if cat.Weight < 1 {
			return fmt.Errorf("category %q weight must be >= 1", cat.ID)
		}
		if catIDs[cat.ID] {
			return fmt.Errorf("duplicate category id: %q", cat.ID)
		}
		catIDs[cat.ID] = true
	}

	ruleIDs := map[string]bool{}
	for _, rule := range c.Rules {
		if !idPattern.MatchString(rule.RuleID) {
			return fmt.Errorf("rule id must be snake_case alphanumeric: %q", rule.RuleID)
		}
		if ruleIDs[rule.RuleID] {
			return fmt.Errorf("duplicate rule id: %q", rule.RuleID)
		}
		ruleIDs[rule.RuleID] = true
		for _, catID := range rule.Categories {
			if !catIDs[catID] {
				return fmt.Errorf("rule %q references non-existent category %q", rule.RuleID, catID)
			}
		}
	}

	if len(c.EnabledCategories()) == 0 {
		return fmt.Errorf("at least one category must be enabled")
	}
	return nil
}

// EnabledCategories returns the enabled categories in config order.
func (c *AdversarialConfig) EnabledCategories() []AdversarialCategory {
	var out []AdversarialCategory
	for _, cat := range c.Categories {
		if cat.Enabled {
			out = append(out, cat)
		}
	}
	return out
}

// EnabledCategoryIDs returns the ids of enabled categories.
func (c *AdversarialConfig) EnabledCategoryIDs() []string {
	var out []string
	for _, cat := range c.EnabledCategories() {
		out = append(out, cat.ID)
	}
	return out
}

// RulesForCategory returns the rules mapped to a category id.
func (c *AdversarialConfig) RulesForCategory(categoryID string) []AdversarialRule {
	var out []AdversarialRule
	for _, rule := range c.Rules {
		for _, catID := range rule.Categories {
			if catID == categoryID {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

// ToMap serializes the config for settings storage and run snapshots.
func (c *AdversarialConfig) ToMap() map[string]interface{} {
	encoded, _ := json.Marshal(c)
	var out map[string]interface{}
	_ = json.Unmarshal(encoded, &out)
	return out
}

// ParseAdversarialConfig decodes and validates a config document.
func ParseAdversarialConfig(raw map[string]interface{}) (*AdversarialConfig, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cfg AdversarialConfig
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		return nil, fmt.Errorf("invalid adversarial config: %w", err)
	}
	if cfg.Version == 0 {
		cfg.Version = AdversarialConfigVersion
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadAdversarialConfig reads the active config from settings, falling back
// to the built-in default on any failure.
func LoadAdversarialConfig(ctx context.Context, repo settings.Repository, logger *slog.Logger) *AdversarialConfig {
	row, err := repo.Get(ctx, AdversarialConfigAppID, AdversarialConfigKey)
	if err == nil && row != nil && len(row.Value) > 0 {
		cfg, parseErr := ParseAdversarialConfig(row.Value)
		if parseErr == nil {
			return cfg
		}
		logger.Warn("Invalid adversarial config in settings, using defaults", "error", parseErr)
	}
	return DefaultAdversarialConfig()
}

// SaveAdversarialConfig validates and persists a config.
func SaveAdversarialConfig(ctx context.Context, repo settings.Repository, cfg *AdversarialConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return repo.Upsert(ctx, AdversarialConfigAppID, AdversarialConfigKey, cfg.ToMap())
}

// DefaultAdversarialConfig returns the built-in 7-category, 13-rule config.
func DefaultAdversarialConfig() *AdversarialConfig {
	return &AdversarialConfig{
		Version: AdversarialConfigVersion,
		Categories: []AdversarialCategory{
			{ID: "quantity_ambiguity", Label: "Quantity Ambiguity", Description: "Inputs with unusual, informal, or ambiguous quantities.", Weight: 1, Enabled: true},
			{ID: "multi_meal_single_message", Label: "Multi-Meal Single Message", Description: "Multiple meals/times in a single message.", Weight: 1, Enabled: true},
			{ID: "correction_contradiction", Label: "Correction / Contradiction", Description: "Initial ambiguous meal description (agent corrects in later turn).", Weight: 1, Enabled: true},
			{ID: "edit_after_confirmation", Label: "Edit After Confirmation", Description: "Normal meal description (agent confirms then requests edit).", Weight: 1, Enabled: true},
			{ID: "future_time_rejection", Label: "Future Time Rejection", Description: "User provides future time for meal.", Weight: 1, Enabled: true},
			{ID: "contextual_without_context", Label: "Contextual Without Context", Description: "ONLY quantity/time with no food mentioned.", Weight: 1, Enabled: true},
			{ID: "composite_dish", Label: "Composite Dish", Description: "Composite dish with multiple ingredients as ONE item.", Weight: 1, Enabled: true},
		},
		Rules: []AdversarialRule{
			{
				RuleID:  "ask_time_if_missing",
				Section: "Time Validation Instructions",
				RuleText: "If the meal time is not specified, the system MUST ask the user " +
					"for the exact time before generating a meal summary. " +
					"It must never assume a time.",
				Categories: []string{"quantity_ambiguity", "multi_meal_single_message", "correction_contradiction", "edit_after_confirmation", "composite_dish"},
			},
			{
				RuleID:  "reject_future_time",
				Section: "Time Validation Instructions",
				RuleText: "If the user mentions a FUTURE time (e.g. 'in 30 minutes', " +
					"'planning to eat at 5pm'), the system MUST NOT generate a meal " +
					"summary or log the meal. It must ask for a valid past/present time.",
				Categories: []string{"future_time_rejection"},
			},
			{
				RuleID:  "ask_quantity_if_ambiguous",
				Section: "Food Processing Instructions",
				RuleText: "If the quantity is ambiguous or missing, the system MUST ask the " +
					"user for clarification before computing calories. " +
					"It must never guess or assume a default quantity.",
				Categories: []string{"quantity_ambiguity", "contextual_without_context"},
			},
			{
				RuleID:  "exact_calorie_values",
				Section: "Nutrition Data Context",
				RuleText: "The system MUST use the exact calorie values from the nutrition " +
					"API. It must NOT round to the nearest 50 or 100. " +
					"The exact values listed must appear in the meal summary.",
				Categories: []string{"quantity_ambiguity", "multi_meal_single_message", "correction_contradiction", "edit_after_confirmation", "composite_dish"},
			},
			{
				RuleID:  "meal_isolation",
				Section: "Meal Isolation Instructions",
				RuleText: "The system MUST only use foods from the current meal entry. " +
					"It must NOT include foods from previous meals or conversation " +
					"history. Each meal is isolated.",
				Categories: []string{"multi_meal_single_message", "edit_after_confirmation"},
			},
			{
				RuleID:  "apply_user_corrections",
				Section: "Edit Operation Prompt Construction",
				RuleText: "When the user corrects a quantity, food item, or time, the " +
					"system MUST update the meal summary to reflect the correction " +
					"and recalculate calories accordingly. It must never ignore " +
					"a user correction.",
				Categories: []string{"correction_contradiction"},
			},
			{
				RuleID:  "support_post_confirmation_edit",
				Section: "Edit Operation Prompt Construction",
				RuleText: "After a meal is confirmed/logged, the system MUST support " +
					"editing the meal (change quantity, food, or time) if the user " +
					"requests it. It should regenerate an updated summary.",
				Categories: []string{"edit_after_confirmation"},
			},
			{
				RuleID:  "no_assume_without_context",
				Section: "Contextual Message Instructions",
				RuleText: "If the user sends only a quantity or time with no food mentioned " +
					"(e.g. '200 grams', 'at 2pm'), the system MUST ask what food " +
					"they are referring to. It must NOT assume or guess a food item.",
				Categories: []string{"contextual_without_context"},
			},
			{
				RuleID:  "composite_dish_single_item",
				Section: "Food Processing Instructions",
				RuleText: "When the user describes a composite dish with ingredients " +
					"(e.g. 'porridge with almonds and honey'), the system MUST " +
					"treat it as ONE dish. It must NOT split ingredients into " +
					"separate food items. It should only ask for the main dish quantity.",
				Categories: []string{"composite_dish"},
			},
			{
				RuleID:  "single_food_no_breakdown",
				Section: "Duplicate Table Prevention Instructions",
				RuleText: "For a single food item, the system MUST show the summary " +
					"nutrition table but MUST NOT show a 'Detailed Breakdown' section " +
					"or duplicate table.",
				Categories: []string{"quantity_ambiguity", "composite_dish"},
			},
			{
				RuleID:  "multi_food_per_item_tables",
				Section: "Table Formatting Instructions",
				RuleText: "For multiple food items, the system MUST show a summary table " +
					"at the top and a detailed breakdown section with per-item " +
					"nutrition tables for each food.",
				Categories: []string{"multi_meal_single_message"},
			},
			{
				RuleID:  "action_chips_present",
				Section: "Action Chips Instructions",
				RuleText: "Every meal summary MUST include both action chips at the end: " +
					"confirm_log and edit_meal in XML chip format. Plain-text " +
					"buttons are forbidden.",
				Categories: []string{"quantity_ambiguity", "multi_meal_single_message", "correction_contradiction", "edit_after_confirmation", "composite_dish"},
			},
			{
				RuleID:  "separate_multiple_meals",
				Section: "Meal Isolation Instructions",
				RuleText: "When the user describes multiple meals in a single message " +
					"(e.g. breakfast and lunch), the system MUST isolate and process " +
					"each meal separately. It must NOT merge them into one entry.",
				Categories: []string{"multi_meal_single_message"},
			},
		},
	}
}

// Rule subsets the non-adversarial judges evaluate.
var correctnessRuleIDs = map[string]bool{
	"exact_calorie_values":       true,
	"single_food_no_breakdown":   true,
	"multi_food_per_item_tables": true,
	"action_chips_present":       true,
	"composite_dish_single_item": true,
}

var efficiencyRuleIDs = map[string]bool{
	"ask_time_if_missing":            true,
	"ask_quantity_if_ambiguous":      true,
	"apply_user_corrections":         true,
	"meal_isolation":                 true,
	"no_assume_without_context":      true,
	"support_post_confirmation_edit": true,
	"separate_multiple_meals":        true,
}

// RulesForCorrectness filters the catalog down to correctness-facing rules.
func RulesForCorrectness(rules []AdversarialRule) []AdversarialRule {
	var out []AdversarialRule
	for _, r := range rules {
		if correctnessRuleIDs[r.RuleID] {
			out = append(out, r)
		}
	}
	return out
}

// RulesForEfficiency filters the catalog down to efficiency-facing rules.
func RulesForEfficiency(rules []AdversarialRule) []AdversarialRule {
	var out []AdversarialRule
	for _, r := range rules {
		if efficiencyRuleIDs[r.RuleID] {
			out = append(out, r)
		}
	}
	return out
}
