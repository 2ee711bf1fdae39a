package evaluation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultAdversarialConfig()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Categories, 7)
	assert.Len(t, cfg.Rules, 13)
	assert.Len(t, cfg.EnabledCategoryIDs(), 7)
}

func TestValidateRejectsDanglingCategoryReference(t *testing.T) {
	cfg := &AdversarialConfig{
		Version:    1,
		Categories: []AdversarialCategory{{ID: "cat_a", Label: "A", Weight: 1, Enabled: true}},
		Rules:      []AdversarialRule{{RuleID: "r1", Section: "S", RuleText: "text", Categories: []string{"cat_missing"}}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-existent category")
}

func TestValidateRejectsDuplicatesAndBadIDs(t *testing.T) {
	dupCats := &AdversarialConfig{
		Version: 1,
		Categories: []AdversarialCategory{
			{ID: "cat_a", Weight: 1, Enabled: true},
			{ID: "cat_a", Weight: 1, Enabled: true},
		},
	}
	assert.ErrorContains(t, dupCats.Validate(), "duplicate category id")

	badID := &AdversarialConfig{
		Version:    1,
		Categories: []AdversarialCategory{{ID: "has spaces", Weight: 1, Enabled: true}},
	}
	assert.ErrorContains(t, badID.Validate(), "snake_case")

	badWeight := &AdversarialConfig{
		Version:    1,
		Categories: []AdversarialCategory{{ID: "ok_id", Weight: 0, Enabled: true}},
	}
	assert.ErrorContains(t, badWeight.Validate(), "weight")
}

func TestValidateRequiresEnabledCategory(t *testing.T) {
	cfg := &AdversarialConfig{
		Version:    1,
		Categories: []AdversarialCategory{{ID: "cat_a", Weight: 1, Enabled: false}},
	}
	assert.ErrorContains(t, cfg.Validate(), "at least one category must be enabled")
}

func TestConfigExportImportRoundTrip(t *testing.T) {
	original := DefaultAdversarialConfig()

	// Export to JSON and import back through the same path the API uses.
	exported := original.ToMap()
	encoded, err := json.Marshal(exported)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &body))

	imported, err := ParseAdversarialConfig(body)
	require.NoError(t, err)
	assert.Equal(t, original, imported)
}

func TestRulesForCategory(t *testing.T) {
	cfg := DefaultAdversarialConfig()
	rules := cfg.RulesForCategory("future_time_rejection")
	require.Len(t, rules, 1)
	assert.Equal(t, "reject_future_time", rules[0].RuleID)

	assert.Empty(t, cfg.RulesForCategory("unknown"))
}

func TestCorrectnessAndEfficiencyRuleSubsets(t *testing.T) {
	rules := DefaultAdversarialConfig().Rules
	assert.Len(t, RulesForCorrectness(rules), 5)
	assert.Len(t, RulesForEfficiency(rules), 7)
}
