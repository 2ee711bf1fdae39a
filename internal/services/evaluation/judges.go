package evaluation

import (
	"fmt"
	"strings"
)

// formatRulesBlock renders a rule catalog section for a judge prompt.
func formatRulesBlock(rules []AdversarialRule) string {
	if len(rules) == 0 {
		return ""
	}
	lines := []string{
		"### Production prompt rules to evaluate",
		"For EACH rule, include a rule_compliance entry in your response.\n",
	}
	for i, r := range rules {
		lines = append(lines, fmt.Sprintf("%d. **%s** [%s]\n   %s", i+1, r.RuleID, r.Section, r.RuleText))
	}
	return strings.Join(lines, "\n")
}

// parseRuleCompliance reads the judge's rule_compliance array, then fills in
// an entry for every catalog rule the judge omitted so downstream reports
// always have full coverage.
func parseRuleCompliance(raw interface{}, rules []AdversarialRule) []RuleCompliance {
	sectionByID := map[string]string{}
	for _, r := range rules {
		sectionByID[r.RuleID] = r.Section
	}

	var compliance []RuleCompliance
	if items, ok := raw.([]interface{}); ok {
		for _, item := range items {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			ruleID, _ := entry["rule_id"].(string)
			followed := true
			if f, ok := entry["followed"].(bool); ok {
				followed = f
			}
			evidence, _ := entry["evidence"].(string)
			compliance = append(compliance, RuleCompliance{
				RuleID:   ruleID,
				Section:  sectionByID[ruleID],
				Followed: followed,
				Evidence: evidence,
			})
		}
	}

	returned := map[string]bool{}
	for _, c := range compliance {
		returned[c.RuleID] = true
	}
	for _, r := range rules {
		if !returned[r.RuleID] {
			compliance = append(compliance, RuleCompliance{
				RuleID:   r.RuleID,
				Section:  r.Section,
				Followed: true,
				Evidence: "Not evaluated by judge",
			})
		}
	}
	return compliance
}

// Map and string helpers shared by the judge parsers.

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getBool(m map[string]interface{}, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func getFloat(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

// normalizeVerdict converts SOFT_FAIL-style enum values to their display
// form and clamps unknown values to fallback.
func normalizeVerdict(raw string, allowed []string, fallback string) string {
	verdict := strings.ReplaceAll(raw, "_", " ")
	for _, a := range allowed {
		if verdict == a {
			return verdict
		}
	}
	return fallback
}

func truncateText(s string, limit int) string {
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
