package evaluation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{[a-zA-Z0-9_.]+\}\}`)

// ResolveContext carries the data prompt variables resolve against.
type ResolveContext struct {
	// Listing is the voice-rx listing data: transcript, apiResponse,
	// sourceType.
	Listing map[string]interface{}
	// AIEval is an existing evaluation snapshot (judgeOutput, llmTranscript).
	AIEval map[string]interface{}
	// Prerequisites holds language/script settings.
	Prerequisites map[string]interface{}
	// Messages is the ordered chat-message list for session flows; each
	// entry carries role and content.
	Messages []map[string]interface{}
	// UseSegments gates the segment-only variables.
	UseSegments bool
}

// ResolveResult is the outcome of variable resolution. Unresolved tokens are
// left intact in the prompt so a human can tell what did not bind.
type ResolveResult struct {
	Prompt              string            `json:"prompt"`
	ResolvedVariables   map[string]string `json:"resolved_variables"`
	UnresolvedVariables []string          `json:"unresolved_variables"`
}

// FormatChatTranscript renders role/content messages as User:/Bot: lines.
func FormatChatTranscript(messages []map[string]interface{}) string {
	var lines []string
	for _, msg := range messages {
		role := strings.ToLower(getString(msg, "role"))
		content := getString(msg, "content")
		switch role {
		case "user":
			lines = append(lines, "User: "+content)
		case "assistant", "bot":
			lines = append(lines, "Bot: "+content)
		}
	}
	return strings.Join(lines, "\n")
}

func formatTranscriptAsText(transcript map[string]interface{}) string {
	var lines []string
	for _, raw := range asList(transcript["segments"]) {
		seg := asMap(raw)
		speaker := getString(seg, "speaker")
		if speaker == "" {
			speaker = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", speaker, getString(seg, "text")))
	}
	return strings.Join(lines, "\n")
}

func extractSpeakers(transcript map[string]interface{}) []string {
	seen := map[string]bool{}
	var speakers []string
	for _, raw := range asList(transcript["segments"]) {
		seg := asMap(raw)
		speaker := getString(seg, "speaker")
		if speaker == "" {
			speaker = "Unknown"
		}
		if !seen[speaker] {
			seen[speaker] = true
			speakers = append(speakers, speaker)
		}
	}
	return speakers
}

func extractTimeWindows(transcript map[string]interface{}) string {
	var lines []string
	for idx, raw := range asList(transcript["segments"]) {
		seg := asMap(raw)
		start := stringOrDefault(seg["startTime"], "00:00:00")
		end := stringOrDefault(seg["endTime"], "00:00:00")
		speaker := getString(seg, "speaker")
		if speaker == "" {
			speaker = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("%d. [%s - %s] Speaker hint: %s", idx+1, start, end, speaker))
	}
	return strings.Join(lines, "\n")
}

func stringOrDefault(v interface{}, def string) string {
	if v == nil {
		return def
	}
	return fmt.Sprintf("%v", v)
}

// getNestedValue resolves a dotted path into a map tree.
func getNestedValue(data map[string]interface{}, path string) interface{} {
	var current interface{} = data
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	return current
}

// ResolvePrompt substitutes {{var}} tokens in promptText from the context.
// Remaining {{x.y}} tokens are resolved by dotted-path lookup into the API
// response mapping; anything still unresolved stays in the prompt.
func ResolvePrompt(promptText string, ctx ResolveContext) ResolveResult {
	result := ResolveResult{
		Prompt:            promptText,
		ResolvedVariables: map[string]string{},
	}

	tokens := map[string]bool{}
	for _, match := range variablePattern.FindAllString(promptText, -1) {
		tokens[match] = true
	}

	for token := range tokens {
		inner := token[2 : len(token)-2]
		value, ok := resolveSingle(inner, ctx)
		if ok {
			result.ResolvedVariables[token] = value
			result.Prompt = strings.ReplaceAll(result.Prompt, token, value)
			continue
		}

		// Dotted-path fallback into the API response mapping.
		apiResponse := asMap(ctx.Listing["api_response"])
		if apiResponse == nil {
			apiResponse = asMap(ctx.Listing["apiResponse"])
		}
		if apiResponse != nil {
			if nested := getNestedValue(apiResponse, inner); nested != nil {
				strVal := stringifyNested(nested)
				result.ResolvedVariables[token] = strVal
				result.Prompt = strings.ReplaceAll(result.Prompt, token, strVal)
				continue
			}
		}
		result.UnresolvedVariables = append(result.UnresolvedVariables, token)
	}

	return result
}

func stringifyNested(v interface{}) string {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		encoded, _ := json.MarshalIndent(v, "", "  ")
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// resolveSingle resolves one variable key (without braces). A false return
// means the key is unavailable in this context.
func resolveSingle(key string, ctx ResolveContext) (string, bool) {
	listing := ctx.Listing
	if listing == nil {
		listing = map[string]interface{}{}
	}
	prereq := ctx.Prerequisites
	if prereq == nil {
		prereq = map[string]interface{}{}
	}

	transcript := asMap(listing["transcript"])
	apiResponse := asMap(listing["api_response"])
	if apiResponse == nil {
		apiResponse = asMap(listing["apiResponse"])
	}

	switch key {
	case "chat_transcript":
		if len(ctx.Messages) > 0 {
			return FormatChatTranscript(ctx.Messages), true
		}
		return "", false

	case "audio":
		// Audio is sent as actual file data; the runner replaces the token
		// with a marker after resolution. Leave it unresolved here.
		return "", false

	case "transcript":
		if transcript != nil {
			return formatTranscriptAsText(transcript), true
		}
		return "", false

	case "llm_transcript":
		if ctx.AIEval != nil {
			judgeOutput := asMap(ctx.AIEval["judgeOutput"])
			if judgeOutput == nil {
				judgeOutput = asMap(ctx.AIEval["judge_output"])
			}
			if judgeOutput != nil {
				if t, ok := judgeOutput["transcript"].(string); ok {
					return t, true
				}
				return formatTranscriptAsText(judgeOutput), true
			}
		}
		return "", false

	case "script_preference":
		if v := getString(prereq, "outputScript"); v != "" {
			return v, true
		}
		if v := getString(prereq, "targetScript"); v != "" {
			return v, true
		}
		if v := getString(prereq, "target_script"); v != "" {
			return v, true
		}
		return "roman", true

	case "language_hint":
		if v := getString(prereq, "language"); v != "" {
			return v, true
		}
		return "Not specified", true

	case "preserve_code_switching":
		preserve := true
		if v, ok := prereq["preserveCodeSwitching"].(bool); ok {
			preserve = v
		} else if v, ok := prereq["preserve_code_switching"].(bool); ok {
			preserve = v
		}
		if preserve {
			return "yes", true
		}
		return "no", true

	case "original_script":
		if v := getString(prereq, "sourceScript"); v != "" {
			return v, true
		}
		if v := getString(prereq, "source_script"); v != "" {
			return v, true
		}
		return "auto", true

	case "segment_count":
		if !ctx.UseSegments || transcript == nil {
			return "", false
		}
		return strconv.Itoa(len(asList(transcript["segments"]))), true

	case "speaker_list":
		if !ctx.UseSegments || transcript == nil {
			return "", false
		}
		return strings.Join(extractSpeakers(transcript), ", "), true

	case "time_windows":
		if !ctx.UseSegments || transcript == nil || len(asList(transcript["segments"])) == 0 {
			return "", false
		}
		return extractTimeWindows(transcript), true

	case "structured_output":
		if apiResponse != nil {
			if rx := apiResponse["rx"]; rx != nil {
				return stringifyNested(rx), true
			}
		}
		return "", false

	case "api_input":
		if apiResponse != nil {
			if input, ok := apiResponse["input"]; ok && input != nil {
				if s, isStr := input.(string); isStr {
					return s, true
				}
				return stringifyNested(input), true
			}
		}
		return "", false

	case "api_rx":
		if apiResponse != nil {
			return stringifyNested(apiResponse), true
		}
		return "", false

	case "llm_structured":
		if ctx.AIEval != nil {
			judgeOutput := asMap(ctx.AIEval["judgeOutput"])
			if judgeOutput == nil {
				judgeOutput = asMap(ctx.AIEval["judge_output"])
			}
			if judgeOutput != nil {
				if sd := judgeOutput["structuredData"]; sd != nil {
					return stringifyNested(sd), true
				}
			}
		}
		return "", false
	}

	return "", false
}
