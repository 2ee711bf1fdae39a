package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadListing() map[string]interface{} {
	return map[string]interface{}{
		"transcript": map[string]interface{}{
			"segments": []interface{}{
				map[string]interface{}{"speaker": "Doctor", "text": "Hello", "startTime": "00:00:00", "endTime": "00:00:05"},
				map[string]interface{}{"speaker": "Patient", "text": "Hi", "startTime": "00:00:05", "endTime": "00:00:09"},
			},
		},
		"api_response": map[string]interface{}{
			"input": "API transcript text",
			"rx": map[string]interface{}{
				"followUp": "2 weeks",
				"vitals":   map[string]interface{}{"pulse": "72"},
			},
		},
	}
}

func TestResolvePromptSegmentVariables(t *testing.T) {
	result := ResolvePrompt(
		"Segments: {{segment_count}}\nSpeakers: {{speaker_list}}\nWindows:\n{{time_windows}}",
		ResolveContext{Listing: uploadListing(), UseSegments: true},
	)

	assert.Empty(t, result.UnresolvedVariables)
	assert.Contains(t, result.Prompt, "Segments: 2")
	assert.Contains(t, result.Prompt, "Speakers: Doctor, Patient")
	assert.Contains(t, result.Prompt, "1. [00:00:00 - 00:00:05] Speaker hint: Doctor")
}

func TestResolvePromptSegmentVariablesUnavailableWithoutSegments(t *testing.T) {
	result := ResolvePrompt("{{segment_count}}", ResolveContext{Listing: uploadListing(), UseSegments: false})
	assert.Equal(t, "{{segment_count}}", result.Prompt)
	assert.Equal(t, []string{"{{segment_count}}"}, result.UnresolvedVariables)
}

func TestResolvePromptAudioStaysUnresolved(t *testing.T) {
	result := ResolvePrompt("Listen: {{audio}}", ResolveContext{Listing: uploadListing(), UseSegments: true})
	assert.Contains(t, result.Prompt, "{{audio}}")
	assert.Contains(t, result.UnresolvedVariables, "{{audio}}")
}

func TestResolvePromptChatTranscript(t *testing.T) {
	result := ResolvePrompt("{{chat_transcript}}", ResolveContext{
		Messages: []map[string]interface{}{
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi there"},
			{"role": "system", "content": "ignored"},
		},
	})
	assert.Equal(t, "User: hello\nBot: hi there", result.Prompt)
}

func TestResolvePromptDottedPathFallback(t *testing.T) {
	result := ResolvePrompt("Pulse: {{rx.vitals.pulse}}", ResolveContext{Listing: uploadListing(), UseSegments: true})
	assert.Equal(t, "Pulse: 72", result.Prompt)
	assert.Empty(t, result.UnresolvedVariables)
}

func TestResolvePromptDefaultsAndPrerequisites(t *testing.T) {
	result := ResolvePrompt(
		"script={{script_preference}} lang={{language_hint}} cs={{preserve_code_switching}} orig={{original_script}}",
		ResolveContext{
			Listing: uploadListing(),
			Prerequisites: map[string]interface{}{
				"targetScript":          "devanagari",
				"language":              "Hindi",
				"preserveCodeSwitching": false,
			},
		},
	)
	assert.Contains(t, result.Prompt, "script=devanagari")
	assert.Contains(t, result.Prompt, "lang=Hindi")
	assert.Contains(t, result.Prompt, "cs=no")
	assert.Contains(t, result.Prompt, "orig=auto")
}

func TestResolvePromptLeavesUnknownTokens(t *testing.T) {
	result := ResolvePrompt("{{nonsense_token}}", ResolveContext{Listing: uploadListing()})
	assert.Equal(t, "{{nonsense_token}}", result.Prompt)
	require.Len(t, result.UnresolvedVariables, 1)
}

func TestResolvePromptStructuredOutputVariables(t *testing.T) {
	result := ResolvePrompt("{{structured_output}}\n---\n{{api_input}}", ResolveContext{Listing: uploadListing()})
	assert.Contains(t, result.Prompt, `"followUp": "2 weeks"`)
	assert.Contains(t, result.Prompt, "API transcript text")
}
