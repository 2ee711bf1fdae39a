package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeParseDirect(t *testing.T) {
	parsed, repaired, err := SafeParse(`{"verdict": "PASS", "score": 3}`)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "PASS", parsed["verdict"])
	assert.Equal(t, float64(3), parsed["score"])
}

func TestSafeParseExtractsWrappedObject(t *testing.T) {
	text := "Here is the result:\n```json\n{\"verdict\": \"PASS\"}\n```\nHope that helps."
	parsed, repaired, err := SafeParse(text)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "PASS", parsed["verdict"])
}

func TestSafeParseIgnoresBracesInsideStrings(t *testing.T) {
	parsed, _, err := SafeParse(`prefix {"note": "a } inside", "n": 1} suffix`)
	require.NoError(t, err)
	assert.Equal(t, "a } inside", parsed["note"])
}

func TestSafeParseRepairsTruncation(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"unterminated string", `{"items": ["a", "b`},
		{"unclosed array", `{"items": ["a", "b"`},
		{"unclosed object", `{"outer": {"inner": 1`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, repaired, err := SafeParse(tc.text)
			require.NoError(t, err)
			assert.True(t, repaired)
			assert.NotNil(t, parsed)
		})
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	truncated := `{"segments": [{"text": "hello`
	once := RepairTruncated(truncated)
	twice := RepairTruncated(once)
	assert.Equal(t, once, twice)
}

func TestSafeParseFailureKeepsSnippet(t *testing.T) {
	_, _, err := SafeParse("not json at all")
	require.Error(t, err)
	var invalid *ErrInvalidJSON
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "not json at all", invalid.Snippet)
}

func TestExtractReturnsOutermostObject(t *testing.T) {
	text := `noise {"a": {"b": 2}} trailing {"c": 3}`
	assert.Equal(t, `{"a": {"b": 2}}`, Extract(text))
}
