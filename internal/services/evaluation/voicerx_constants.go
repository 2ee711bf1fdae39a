package evaluation

import (
	"fmt"
	"strings"
)

// Hardcoded prompts and schemas for the voice-rx pipeline, covering both the
// upload and API flows.

// scriptDisplayNames maps script ids to human-readable names for prompts.
var scriptDisplayNames = map[string]string{
	"latin":      "Latin (Roman/English alphabet)",
	"devanagari": "Devanagari",
	"arabic":     "Arabic",
	"bengali":    "Bengali",
	"tamil":      "Tamil",
	"telugu":     "Telugu",
	"kannada":    "Kannada",
	"malayalam":  "Malayalam",
	"gujarati":   "Gujarati",
	"gurmukhi":   "Gurmukhi",
	"odia":       "Odia",
	"sinhala":    "Sinhala",
	"cjk":        "CJK (Chinese/Japanese)",
	"hangul":     "Hangul (Korean)",
	"hiragana":   "Hiragana",
	"katakana":   "Katakana",
	"cyrillic":   "Cyrillic",
	"thai":       "Thai",
	"hebrew":     "Hebrew",
	"greek":      "Greek",
	"myanmar":    "Myanmar",
	"ethiopic":   "Ethiopic",
	"khmer":      "Khmer",
	"georgian":   "Georgian",
}

// ResolveScriptName converts a script id to its display name. "auto" and
// empty ids return "" for the caller to handle.
func ResolveScriptName(scriptID string) string {
	if scriptID == "" || scriptID == "auto" {
		return ""
	}
	if name, ok := scriptDisplayNames[scriptID]; ok {
		return name
	}
	return strings.ToUpper(scriptID[:1]) + scriptID[1:]
}

// normalizationPromptTemplate transliterates a segment transcript. The
// source instruction is either "from X script" or auto-detect; the target
// script is always concrete.
const normalizationPromptTemplate = `You are an expert multilingual transliteration specialist.

TASK: Transliterate the following transcript into %[1]s script.
%[2]s
Source language: %[3]s

CRITICAL: Every "text" field in your output MUST be written in %[1]s characters. Do NOT return text in the original script.

RULES:
1. Convert ALL text into %[1]s script using standard transliteration conventions for %[3]s
2. Preserve proper nouns, technical/medical terminology, and widely-known abbreviations in their original form
3. Keep speaker labels unchanged
4. Keep timestamps unchanged (startTime, endTime, startSeconds, endSeconds)
5. For code-switched content (multiple languages mixed), transliterate the %[3]s portions while keeping other language portions intact
6. Return EXACT same JSON structure with same number of segments
7. If the text is already in %[1]s script, return it unchanged

INPUT TRANSCRIPT:
%[4]s

OUTPUT: Return the transliterated transcript in JSON format. ALL text MUST be in %[1]s script.`

// BuildNormalizationPrompt renders the segment normalization prompt.
func BuildNormalizationPrompt(targetScript, sourceScript, language, transcriptJSON string) string {
	sourceInstruction := "Auto-detect the source script."
	if name := ResolveScriptName(sourceScript); name != "" {
		sourceInstruction = fmt.Sprintf("The source text is in %s script.", name)
	}
	if language == "" {
		language = "the source language"
	}
	return fmt.Sprintf(normalizationPromptTemplate, targetScript, sourceInstruction, language, transcriptJSON)
}

// BuildNormalizationSchema builds the segment normalization schema with the
// target script constraint embedded in field descriptions.
func BuildNormalizationSchema(targetScript string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"segments": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"speaker": map[string]interface{}{"type": "string"},
						"text": map[string]interface{}{
							"type":        "string",
							"description": fmt.Sprintf("Transliterated text — MUST be in %s script", targetScript),
						},
						"startTime": map[string]interface{}{
							"type":        "string",
							"description": "Exact start time in HH:MM:SS format — must match the original transcript time window exactly, do not modify or approximate",
						},
						"endTime": map[string]interface{}{
							"type":        "string",
							"description": "Exact end time in HH:MM:SS format — must match the original transcript time window exactly, do not modify or approximate",
						},
					},
					"required": []interface{}{"speaker", "text", "startTime", "endTime"},
				},
			},
		},
		"required": []interface{}{"segments"},
	}
}

// uploadEvaluationPromptTemplate judges a pre-built segment comparison
// table; the critique call is text-only.
const uploadEvaluationPromptTemplate = `You are an expert medical transcription auditor acting as a JUDGE.

═══════════════════════════════════════════════════════════════════════════════
TASK: SEGMENT-BY-SEGMENT TRANSCRIPT COMPARISON
═══════════════════════════════════════════════════════════════════════════════

Below is a pre-built comparison table with %d segments. Each row pairs the ORIGINAL transcript segment (system under test) with the JUDGE transcript segment (your reference from Call 1). Both cover the EXACT same time window.

Your job: For each segment, determine if there is a meaningful discrepancy. If the segments essentially match, do NOT include that segment in your output — only report segments with actual discrepancies.

═══════════════════════════════════════════════════════════════════════════════
SEGMENT COMPARISON TABLE
═══════════════════════════════════════════════════════════════════════════════

%s

═══════════════════════════════════════════════════════════════════════════════
SEVERITY CLASSIFICATION
═══════════════════════════════════════════════════════════════════════════════

CRITICAL (Patient safety risk):
  - Medication dosage errors (10mg vs 100mg)
  - Wrong drug names (Celebrex vs Cerebyx)
  - Missed allergies or contraindications
  - Incorrect procedure/diagnosis

MODERATE (Clinical meaning affected):
  - Speaker misattribution affecting context
  - Missing medical history elements
  - Incomplete symptom descriptions

MINOR (No clinical impact):
  - Filler words (um, uh, you know)
  - Minor punctuation differences
  - Paraphrasing with same meaning

═══════════════════════════════════════════════════════════════════════════════
OUTPUT RULES
═══════════════════════════════════════════════════════════════════════════════

- ONLY output segments that have a discrepancy (severity != none)
- Segments not in your output are assumed to be matches
- For each discrepancy segment, provide: segmentIndex, severity, discrepancy description, likelyCorrect (original/judge/both/unclear), confidence, and category
- Provide an overallAssessment summarizing transcript quality
- Output structure is controlled by the schema — just provide the data`

// UploadEvaluationSchema is the default upload-flow critique schema.
var UploadEvaluationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"segments": map[string]interface{}{
			"type":        "array",
			"description": "ONLY segments with discrepancies — omit matching segments",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"segmentIndex": map[string]interface{}{"type": "number", "description": "Zero-based index of segment"},
					"severity": map[string]interface{}{
						"type":        "string",
						"enum":        []interface{}{"minor", "moderate", "critical"},
						"description": "Clinical impact severity",
					},
					"discrepancy": map[string]interface{}{"type": "string", "description": "Description of the difference"},
					"likelyCorrect": map[string]interface{}{
						"type":        "string",
						"enum":        []interface{}{"original", "judge", "both", "unclear"},
						"description": "Which transcript is likely correct",
					},
					"confidence": map[string]interface{}{
						"type":        "string",
						"enum":        []interface{}{"high", "medium", "low"},
						"description": "Confidence in the determination",
					},
					"category": map[string]interface{}{"type": "string", "description": "Error category (e.g., dosage, speaker, terminology)"},
				},
				"required": []interface{}{"segmentIndex", "severity", "discrepancy", "likelyCorrect"},
			},
		},
		"overallAssessment": map[string]interface{}{"type": "string", "description": "Summary of overall transcript quality"},
	},
	"required": []interface{}{"segments", "overallAssessment"},
}

// BuildSegmentComparisonTable pairs original and judge segments row by row
// for the upload critique prompt.
func BuildSegmentComparisonTable(originalSegments, judgeSegments []interface{}) string {
	total := len(originalSegments)
	if len(judgeSegments) > total {
		total = len(judgeSegments)
	}
	if total == 0 {
		return "(no segments to compare)"
	}

	var blocks []string
	for i := 0; i < total; i++ {
		var origText, judgeText, timeWindow, speaker string
		if i < len(originalSegments) {
			seg := asMap(originalSegments[i])
			origText = stringOrDefault(seg["text"], "(missing)")
			timeWindow = fmt.Sprintf("%s - %s",
				stringOrDefault(seg["startTime"], "?"),
				stringOrDefault(seg["endTime"], "?"))
			speaker = stringOrDefault(seg["speaker"], "Unknown")
		} else {
			origText = "(missing)"
		}
		if i < len(judgeSegments) {
			seg := asMap(judgeSegments[i])
			judgeText = stringOrDefault(seg["text"], "(missing)")
			if timeWindow == "" {
				timeWindow = fmt.Sprintf("%s - %s",
					stringOrDefault(seg["startTime"], "?"),
					stringOrDefault(seg["endTime"], "?"))
			}
			if speaker == "" {
				speaker = stringOrDefault(seg["speaker"], "Unknown")
			}
		} else {
			judgeText = "(missing)"
		}

		blocks = append(blocks, fmt.Sprintf(
			"[%d] TIME: %s | SPEAKER: %s\n    ORIGINAL: %s\n    JUDGE:    %s",
			i, timeWindow, speaker, origText, judgeText))
	}
	return strings.Join(blocks, "\n\n")
}

// BuildUploadEvaluationPrompt renders the upload critique prompt around the
// server-built comparison table.
func BuildUploadEvaluationPrompt(segmentCount int, comparisonTable string) string {
	return fmt.Sprintf(uploadEvaluationPromptTemplate, segmentCount, comparisonTable)
}

// apiEvaluationPromptTemplate judges pre-aligned field comparisons for the
// API flow.
const apiEvaluationPromptTemplate = `You are an expert Medical Informatics Auditor evaluating rx JSON accuracy.

═══════════════════════════════════════════════════════════════════════════════
TASK: JUDGE PRE-ALIGNED FIELD COMPARISONS
═══════════════════════════════════════════════════════════════════════════════

Below is a server-built comparison. Section 1 compares transcripts. Section 2
lists individual structured-data fields, already matched and aligned for you.

%s

═══════════════════════════════════════════════════════════════════════════════
YOUR JOB
═══════════════════════════════════════════════════════════════════════════════

For EACH field entry in the structured data section:
1. Judge whether the API value and Judge value agree in CLINICAL MEANING
   (not exact string match — "500mg" and "500 mg" are the same)
2. Classify severity:
   - none: Semantically equivalent
   - minor: Cosmetic only (formatting, abbreviation, casing)
   - moderate: Clinically meaningful difference, not dangerous
   - critical: Patient safety concern (wrong dosage, wrong drug, missed allergy)
3. Write a brief critique explaining your reasoning
4. Assign confidence (low/medium/high)
5. If possible, quote a short snippet from the API TRANSCRIPT as evidence

For the TRANSCRIPT section:
- Summarize whether transcripts are semantically equivalent
- List significant discrepancies with severity

═══════════════════════════════════════════════════════════════════════════════
OUTPUT RULES
═══════════════════════════════════════════════════════════════════════════════

- Output ONE entry per field in structuredComparison.fields
- Use the EXACT fieldPath string from the comparison data
- Copy apiValue and judgeValue as-is from the comparison
- Provide an overallAssessment summarizing API quality
- Output structure is controlled by the schema — just provide the data`

// BuildAPIEvaluationPrompt renders the API-flow critique prompt around the
// combined transcript + field comparison block.
func BuildAPIEvaluationPrompt(comparison string) string {
	return fmt.Sprintf(apiEvaluationPromptTemplate, comparison)
}

// APIEvaluationSchema is the default API-flow critique schema.
var APIEvaluationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"transcriptComparison": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"summary": map[string]interface{}{"type": "string", "description": "Summary of transcript comparison"},
				"discrepancies": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"description": map[string]interface{}{"type": "string"},
							"severity":    map[string]interface{}{"type": "string", "enum": []interface{}{"minor", "moderate", "critical"}},
						},
						"required": []interface{}{"description", "severity"},
					},
				},
			},
			"required": []interface{}{"summary"},
		},
		"structuredComparison": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fields": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"fieldPath":       map[string]interface{}{"type": "string", "description": "JSON path to the field"},
							"apiValue":        map[string]interface{}{"type": "string", "description": "Exact string value from the comparison data above"},
							"judgeValue":      map[string]interface{}{"type": "string", "description": "Exact string value from the comparison data above"},
							"match":           map[string]interface{}{"type": "boolean", "description": "Whether values match"},
							"critique":        map[string]interface{}{"type": "string", "description": "Explanation of difference or match"},
							"severity":        map[string]interface{}{"type": "string", "enum": []interface{}{"none", "minor", "moderate", "critical"}},
							"confidence":      map[string]interface{}{"type": "string", "enum": []interface{}{"low", "medium", "high"}},
							"evidenceSnippet": map[string]interface{}{"type": "string", "description": "Short quote from the API transcript supporting this verdict"},
						},
						"required": []interface{}{"fieldPath", "apiValue", "judgeValue", "match", "critique", "severity"},
					},
				},
			},
			"required": []interface{}{"fields"},
		},
		"overallAssessment": map[string]interface{}{"type": "string", "description": "Overall assessment of API system quality"},
	},
	"required": []interface{}{"transcriptComparison", "structuredComparison", "overallAssessment"},
}
