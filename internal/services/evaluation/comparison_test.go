package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepComparisonMatchesByNormalizedName(t *testing.T) {
	apiRx := map[string]interface{}{
		"medications": []interface{}{
			map[string]interface{}{"name": "Amoxicillin", "dosage": "500mg"},
		},
	}
	judgeRx := map[string]interface{}{
		"medications": []interface{}{
			map[string]interface{}{"name": "amoxicillin ", "dosage": "500 mg"},
		},
	}

	entries := BuildDeepComparison(apiRx, judgeRx)

	var dosage *ComparisonEntry
	for i := range entries {
		if entries[i].FieldPath == "rx.medications[0].dosage" {
			dosage = &entries[i]
		}
	}
	require.NotNil(t, dosage, "dosage entry missing")
	assert.Equal(t, "mismatch", dosage.MatchHint)
	assert.Equal(t, "500mg", dosage.APIValue)
	assert.Equal(t, "500 mg", dosage.JudgeValue)
	assert.Equal(t, "Amoxicillin", dosage.ItemName)

	// No api_only/judge_only entries: the items aligned by normalized name.
	for _, e := range entries {
		assert.NotEqual(t, "api_only", e.MatchHint)
		assert.NotEqual(t, "judge_only", e.MatchHint)
	}
}

func TestDeepComparisonOnlySides(t *testing.T) {
	apiRx := map[string]interface{}{
		"medications": []interface{}{
			map[string]interface{}{"name": "Dolo", "dosage": "650mg"},
		},
	}
	judgeRx := map[string]interface{}{
		"medications": []interface{}{
			map[string]interface{}{"name": "Crocin", "dosage": "500mg"},
		},
	}

	entries := BuildDeepComparison(apiRx, judgeRx)
	require.Len(t, entries, 2)

	// API-first ordering: the API-only item comes before the judge-only one.
	assert.Equal(t, "api_only", entries[0].MatchHint)
	assert.Equal(t, "rx.medications[0]", entries[0].FieldPath)
	assert.Equal(t, "(not found)", entries[0].JudgeValue)

	assert.Equal(t, "judge_only", entries[1].MatchHint)
	assert.Equal(t, "rx.medications[Crocin]", entries[1].FieldPath)
	assert.Equal(t, "(not found)", entries[1].APIValue)
}

func TestDeepComparisonObjectAndScalarFields(t *testing.T) {
	apiRx := map[string]interface{}{
		"vitalsAndBodyComposition": map[string]interface{}{"pulse": "72", "weight": "70kg"},
		"followUp":                 "2 weeks",
	}
	judgeRx := map[string]interface{}{
		"vitalsAndBodyComposition": map[string]interface{}{"pulse": "72"},
		"followUp":                 "two weeks",
	}

	entries := BuildDeepComparison(apiRx, judgeRx)

	byPath := map[string]ComparisonEntry{}
	for _, e := range entries {
		byPath[e.FieldPath] = e
	}

	assert.Equal(t, "match", byPath["rx.vitalsAndBodyComposition.pulse"].MatchHint)
	assert.Equal(t, "mismatch", byPath["rx.vitalsAndBodyComposition.weight"].MatchHint)
	assert.Equal(t, "(empty)", byPath["rx.vitalsAndBodyComposition.weight"].JudgeValue)
	assert.Equal(t, "mismatch", byPath["rx.followUp"].MatchHint)
}

func TestDeepComparisonStringArrayPadsShorterSide(t *testing.T) {
	apiRx := map[string]interface{}{
		"advice": []interface{}{"rest", "hydrate"},
	}
	judgeRx := map[string]interface{}{
		"advice": []interface{}{"rest"},
	}

	entries := BuildDeepComparison(apiRx, judgeRx)
	require.Len(t, entries, 2)
	assert.Equal(t, "rx.advice[0]", entries[0].FieldPath)
	assert.Equal(t, "match", entries[0].MatchHint)
	assert.Equal(t, "rx.advice[1]", entries[1].FieldPath)
	assert.Equal(t, "(empty)", entries[1].JudgeValue)
	assert.Equal(t, "mismatch", entries[1].MatchHint)
}

func TestFormatComparisonForPrompt(t *testing.T) {
	entries := []ComparisonEntry{
		{FieldPath: "rx.medications[0].dosage", APIValue: "500mg", JudgeValue: "500 mg", MatchHint: "match", ItemName: "Amoxicillin"},
	}
	block := FormatComparisonForPrompt(entries)
	assert.Contains(t, block, "[1] FIELD: rx.medications[0].dosage")
	assert.Contains(t, block, "ITEM:  Amoxicillin")
	assert.Contains(t, block, "API:   500mg")
	assert.Contains(t, block, "HINT:  match")

	assert.Equal(t, "(no structured data fields to compare)", FormatComparisonForPrompt(nil))
}
