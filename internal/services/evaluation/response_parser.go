package evaluation

import (
	"fmt"
	"strings"
	"time"

	"evalforge/pkg/jsonrepair"
)

// Parsers for voice-rx LLM responses. Output maps use camelCase keys for
// frontend compatibility.

func validateSeverity(v interface{}) string {
	s := strings.ToLower(stringOrDefault(v, "none"))
	switch s {
	case "none", "minor", "moderate", "critical":
		return s
	}
	return "none"
}

func validateLikelyCorrect(v interface{}) string {
	s := strings.ToLower(stringOrDefault(v, "unclear"))
	switch s {
	case "original", "judge", "both", "unclear":
		return s
	}
	return "unclear"
}

func validateConfidence(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	s := strings.ToLower(fmt.Sprintf("%v", v))
	switch s {
	case "high", "medium", "low":
		return s
	}
	return nil
}

// ParseTranscriptResponse parses a transcription response into the
// TranscriptData shape.
func ParseTranscriptResponse(text string) (map[string]interface{}, error) {
	parsed, _, err := jsonrepair.SafeParse(text)
	if err != nil {
		return nil, err
	}

	var segments []map[string]interface{}
	for idx, raw := range asList(parsed["segments"]) {
		seg := asMap(raw)
		startTime := seg["startTime"]
		if startTime == nil {
			startTime = seg["start_time"]
		}
		endTime := seg["endTime"]
		if endTime == nil {
			endTime = seg["end_time"]
		}

		var startSeconds, endSeconds interface{}
		if v, ok := seg["startTime"].(float64); ok {
			startSeconds = v
		}
		if v, ok := seg["endTime"].(float64); ok {
			endSeconds = v
		}

		segments = append(segments, map[string]interface{}{
			"speaker":      stringOrDefault(seg["speaker"], "Unknown"),
			"text":         stringOrDefault(seg["text"], ""),
			"startTime":    stringOrDefault(startTime, fmt.Sprintf("%d", idx)),
			"endTime":      stringOrDefault(endTime, fmt.Sprintf("%d", idx+1)),
			"startSeconds": startSeconds,
			"endSeconds":   endSeconds,
		})
	}

	var transcriptLines []string
	for _, s := range segments {
		transcriptLines = append(transcriptLines, fmt.Sprintf("[%s]: %s", s["speaker"], s["text"]))
	}

	now := time.Now().UTC()
	return map[string]interface{}{
		"formatVersion": "1.0",
		"generatedAt":   now.Format(time.RFC3339),
		"metadata": map[string]interface{}{
			"recordingId": "ai-generated",
			"jobId":       fmt.Sprintf("eval-%d", now.UnixMilli()),
			"processedAt": now.Format(time.RFC3339),
		},
		"speakerMapping": map[string]interface{}{},
		"segments":       toInterfaceList(segments),
		"fullTranscript": strings.Join(transcriptLines, "\n"),
	}, nil
}

func toInterfaceList(items []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// ParseCritiqueResponse parses the upload-flow critique. Statistics are
// computed server-side from the known segment count: matchCount is
// totalSegments minus the distinct discrepancy indices.
func ParseCritiqueResponse(text string, originalSegments, llmSegments []interface{}, model string, totalSegments int) (map[string]interface{}, error) {
	parsed, _, err := jsonrepair.SafeParse(text)
	if err != nil {
		return nil, err
	}

	var segments []map[string]interface{}
	for idx, raw := range asList(parsed["segments"]) {
		seg := asMap(raw)
		segIdx := idx
		if v, ok := seg["segmentIndex"].(float64); ok {
			segIdx = int(v)
		}
		discrepancy := stringOrDefault(seg["discrepancy"], "")
		if discrepancy == "" {
			discrepancy = stringOrDefault(seg["critique"], "")
		}
		judgeText := stringOrDefault(seg["judgeText"], "")
		if judgeText == "" {
			judgeText = stringOrDefault(seg["llmText"], "")
		}
		var category interface{}
		if c := getString(seg, "category"); c != "" {
			category = c
		}
		segments = append(segments, map[string]interface{}{
			"segmentIndex":  segIdx,
			"originalText":  stringOrDefault(seg["originalText"], ""),
			"judgeText":     judgeText,
			"discrepancy":   discrepancy,
			"likelyCorrect": validateLikelyCorrect(seg["likelyCorrect"]),
			"confidence":    validateConfidence(seg["confidence"]),
			"severity":      validateSeverity(seg["severity"]),
			"category":      category,
		})
	}

	// Back-fill originalText/judgeText from the source segments when missing.
	for _, s := range segments {
		si := s["segmentIndex"].(int)
		if s["originalText"] == "" && si >= 0 && si < len(originalSegments) {
			s["originalText"] = stringOrDefault(asMap(originalSegments[si])["text"], "")
		}
		if s["judgeText"] == "" && si >= 0 && si < len(llmSegments) {
			s["judgeText"] = stringOrDefault(asMap(llmSegments[si])["text"], "")
		}
	}

	var assessmentRefs interface{}
	if rawRefs := asList(parsed["assessmentReferences"]); len(rawRefs) > 0 {
		var refs []interface{}
		for _, raw := range rawRefs {
			ref := asMap(raw)
			if idx, ok := ref["segmentIndex"].(float64); ok {
				refs = append(refs, map[string]interface{}{
					"segmentIndex": int(idx),
					"timeWindow":   stringOrDefault(ref["timeWindow"], ""),
					"issue":        stringOrDefault(ref["issue"], ""),
					"severity":     validateSeverity(ref["severity"]),
				})
			}
		}
		if len(refs) > 0 {
			assessmentRefs = refs
		}
	}

	actualTotal := totalSegments
	if actualTotal == 0 {
		actualTotal = len(originalSegments)
		if len(llmSegments) > actualTotal {
			actualTotal = len(llmSegments)
		}
		if actualTotal == 0 {
			actualTotal = len(segments)
		}
	}

	critiqueIndices := map[int]bool{}
	counts := map[string]int{}
	for _, s := range segments {
		critiqueIndices[s["segmentIndex"].(int)] = true
		counts[s["severity"].(string)]++
		counts[s["likelyCorrect"].(string)+"_correct"]++
	}

	stats := map[string]interface{}{
		"totalSegments":        actualTotal,
		"criticalCount":        counts["critical"],
		"moderateCount":        counts["moderate"],
		"minorCount":           counts["minor"],
		"matchCount":           actualTotal - len(critiqueIndices),
		"originalCorrectCount": counts["original_correct"],
		"judgeCorrectCount":    counts["judge_correct"],
		"unclearCount":         counts["unclear_correct"],
	}

	return map[string]interface{}{
		"segments":             toInterfaceList(segments),
		"overallAssessment":    stringOrDefault(parsed["overallAssessment"], ""),
		"assessmentReferences": assessmentRefs,
		"statistics":           stats,
		"generatedAt":          time.Now().UTC().Format(time.RFC3339),
		"model":                model,
	}, nil
}

// ParseAPICritiqueResponse parses the API-flow critique, mapping well-known
// keys and keeping the full parsed output for schema-driven rendering.
func ParseAPICritiqueResponse(text string, model string) (map[string]interface{}, error) {
	parsed, _, err := jsonrepair.SafeParse(text)
	if err != nil {
		return nil, err
	}

	overall := stringOrDefault(parsed["overallAssessment"], "")
	if overall == "" {
		overall = stringOrDefault(parsed["summary"], "")
	}
	if overall == "" {
		overall = stringOrDefault(parsed["overall_assessment"], "")
	}

	return map[string]interface{}{
		"transcriptComparison": parsed["transcriptComparison"],
		"structuredComparison": parsed["structuredComparison"],
		"overallAssessment":    overall,
		"generatedAt":          time.Now().UTC().Format(time.RFC3339),
		"model":                model,
		"rawOutput":            parsed,
	}, nil
}
