package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalforge/internal/core/domain/evaluator"
)

func TestGenerateJSONSchemaRequiresEveryKey(t *testing.T) {
	fields := []evaluator.OutputField{
		{Key: "score", Type: "number", IsMainMetric: true},
		{Key: "note", Type: "text", DisplayMode: "hidden"},
	}

	schema := GenerateJSONSchema(fields)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.ElementsMatch(t, []interface{}{"score", "note"}, schema["required"])

	props := schema["properties"].(map[string]interface{})
	assert.Equal(t, "number", props["score"].(map[string]interface{})["type"])
	assert.Equal(t, "string", props["note"].(map[string]interface{})["type"])
}

func TestGenerateJSONSchemaArrayOfStrings(t *testing.T) {
	fields := []evaluator.OutputField{
		{Key: "issues", Type: "array", ArrayItemSchema: map[string]interface{}{"itemType": "string"}},
	}
	schema := GenerateJSONSchema(fields)
	items := schema["properties"].(map[string]interface{})["issues"].(map[string]interface{})["items"].(map[string]interface{})
	assert.Equal(t, "string", items["type"])
}

func TestGenerateJSONSchemaObjectItems(t *testing.T) {
	fields := []evaluator.OutputField{
		{
			Key:  "findings",
			Type: "array",
			ArrayItemSchema: map[string]interface{}{
				"itemType": "object",
				"properties": []interface{}{
					map[string]interface{}{"key": "label", "type": "string", "description": "finding label"},
					map[string]interface{}{"key": "weight", "type": "number"},
				},
			},
		},
	}

	schema := GenerateJSONSchema(fields)
	items := schema["properties"].(map[string]interface{})["findings"].(map[string]interface{})["items"].(map[string]interface{})
	require.Equal(t, "object", items["type"])
	assert.ElementsMatch(t, []interface{}{"label", "weight"}, items["required"])
	props := items["properties"].(map[string]interface{})
	assert.Equal(t, "finding label", props["label"].(map[string]interface{})["description"])
}

func TestGenerateJSONSchemaUnknownTypeIsString(t *testing.T) {
	schema := GenerateJSONSchema([]evaluator.OutputField{{Key: "x", Type: "mystery"}})
	props := schema["properties"].(map[string]interface{})
	assert.Equal(t, "string", props["x"].(map[string]interface{})["type"])
}

func TestExtractScoresMainMetric(t *testing.T) {
	fields := []evaluator.OutputField{
		{Key: "score", Type: "number", IsMainMetric: true, Thresholds: map[string]interface{}{"green": float64(4)}},
		{Key: "note", Type: "text", DisplayMode: "hidden"},
		{Key: "reasoning", Type: "text"},
	}
	output := map[string]interface{}{
		"score":     float64(4.5),
		"note":      "internal",
		"reasoning": "solid response",
	}

	scores := extractScores(output, fields)
	require.NotNil(t, scores)
	assert.Equal(t, float64(4.5), scores["overall_score"])
	assert.Equal(t, float64(4), scores["max_score"])
	assert.Equal(t, "solid response", scores["reasoning"])

	breakdown := scores["breakdown"].(map[string]interface{})
	assert.Contains(t, breakdown, "score")
	assert.Contains(t, breakdown, "reasoning")
	assert.NotContains(t, breakdown, "note")
}

func TestExtractScoresWithoutMainMetric(t *testing.T) {
	output := map[string]interface{}{"anything": 1}
	scores := extractScores(output, nil)
	require.NotNil(t, scores)
	assert.Nil(t, scores["overall_score"])
	assert.Equal(t, output, scores["breakdown"])
}
