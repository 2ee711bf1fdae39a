package evaluation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTranscriptResponse(t *testing.T) {
	raw := `{"segments": [
		{"speaker": "Doctor", "text": "Hello", "startTime": "00:00:00", "endTime": "00:00:05"},
		{"speaker": "Patient", "text": "Hi", "startTime": "00:00:05", "endTime": "00:00:09"}
	]}`

	parsed, err := ParseTranscriptResponse(raw)
	require.NoError(t, err)

	segments := parsed["segments"].([]interface{})
	require.Len(t, segments, 2)
	first := segments[0].(map[string]interface{})
	assert.Equal(t, "Doctor", first["speaker"])
	assert.Equal(t, "00:00:00", first["startTime"])
	assert.Equal(t, "[Doctor]: Hello\n[Patient]: Hi", parsed["fullTranscript"])
	assert.Equal(t, "1.0", parsed["formatVersion"])
}

func TestParseCritiqueStatisticsArithmetic(t *testing.T) {
	// 12 segments, discrepancies at indices {0, 3, 7}.
	critique := map[string]interface{}{
		"segments": []interface{}{
			map[string]interface{}{"segmentIndex": float64(0), "severity": "critical", "discrepancy": "wrong dosage", "likelyCorrect": "judge"},
			map[string]interface{}{"segmentIndex": float64(3), "severity": "moderate", "discrepancy": "missing history", "likelyCorrect": "original"},
			map[string]interface{}{"segmentIndex": float64(7), "severity": "minor", "discrepancy": "filler words", "likelyCorrect": "unclear"},
		},
		"overallAssessment": "mostly accurate",
	}
	encoded, err := json.Marshal(critique)
	require.NoError(t, err)

	original := make([]interface{}, 12)
	judge := make([]interface{}, 12)
	for i := range original {
		original[i] = map[string]interface{}{"text": "orig"}
		judge[i] = map[string]interface{}{"text": "judge"}
	}

	parsed, err := ParseCritiqueResponse(string(encoded), original, judge, "test-model", 12)
	require.NoError(t, err)

	stats := parsed["statistics"].(map[string]interface{})
	assert.Equal(t, 12, stats["totalSegments"])
	assert.Equal(t, 9, stats["matchCount"])
	assert.Equal(t, 1, stats["criticalCount"])
	assert.Equal(t, 1, stats["moderateCount"])
	assert.Equal(t, 1, stats["minorCount"])
	// Severity counts sum to the discrepancy count.
	total := stats["criticalCount"].(int) + stats["moderateCount"].(int) + stats["minorCount"].(int)
	assert.Equal(t, 3, total)

	assert.Equal(t, 1, stats["originalCorrectCount"])
	assert.Equal(t, 1, stats["judgeCorrectCount"])
	assert.Equal(t, 1, stats["unclearCount"])
}

func TestParseCritiqueBackfillsTextsAndValidatesEnums(t *testing.T) {
	critique := `{"segments": [{"segmentIndex": 1, "severity": "catastrophic", "discrepancy": "x", "likelyCorrect": "nobody"}], "overallAssessment": "ok"}`
	original := []interface{}{
		map[string]interface{}{"text": "seg0"},
		map[string]interface{}{"text": "seg1-original"},
	}
	judge := []interface{}{
		map[string]interface{}{"text": "seg0"},
		map[string]interface{}{"text": "seg1-judge"},
	}

	parsed, err := ParseCritiqueResponse(critique, original, judge, "m", 2)
	require.NoError(t, err)

	seg := parsed["segments"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "seg1-original", seg["originalText"])
	assert.Equal(t, "seg1-judge", seg["judgeText"])
	assert.Equal(t, "none", seg["severity"], "unknown severity clamps to none")
	assert.Equal(t, "unclear", seg["likelyCorrect"])
}

func TestParseAPICritiqueWellKnownKeys(t *testing.T) {
	raw := `{"summary": "close match", "structuredComparison": {"fields": []}}`
	parsed, err := ParseAPICritiqueResponse(raw, "m")
	require.NoError(t, err)
	assert.Equal(t, "close match", parsed["overallAssessment"])
	assert.NotNil(t, parsed["rawOutput"])
	assert.Equal(t, "m", parsed["model"])
}

func TestBuildSegmentComparisonTable(t *testing.T) {
	original := []interface{}{
		map[string]interface{}{"text": "take 10mg", "startTime": "00:00:00", "endTime": "00:00:04", "speaker": "Doctor"},
	}
	judge := []interface{}{
		map[string]interface{}{"text": "take 100mg", "startTime": "00:00:00", "endTime": "00:00:04", "speaker": "Doctor"},
		map[string]interface{}{"text": "extra", "startTime": "00:00:04", "endTime": "00:00:08", "speaker": "Patient"},
	}

	table := BuildSegmentComparisonTable(original, judge)
	assert.Contains(t, table, "[0] TIME: 00:00:00 - 00:00:04 | SPEAKER: Doctor")
	assert.Contains(t, table, "ORIGINAL: take 10mg")
	assert.Contains(t, table, "JUDGE:    take 100mg")
	assert.Contains(t, table, "ORIGINAL: (missing)")
}
