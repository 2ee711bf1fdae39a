package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ComparisonEntry is one field-level comparison line for prompt injection.
// Paths are index-based for items present in API data
// (rx.medications[0].dosage) and name-based for judge-only items
// (rx.medications[Crocin]).
type ComparisonEntry struct {
	FieldPath  string `json:"field_path"`
	APIValue   string `json:"api_value"`
	JudgeValue string `json:"judge_value"`
	MatchHint  string `json:"match_hint"` // match | mismatch | api_only | judge_only
	ItemName   string `json:"item_name,omitempty"`
}

// arrayFieldSpec configures key-matched array comparison for one rx field.
type arrayFieldSpec struct {
	name   string
	key    string
	fields []string
}

// Comparison configuration per rx key. Array items are matched by the key
// field normalized to lowercase/stripped; object fields compare listed
// sub-keys; string arrays compare positionally.
var (
	arrayFieldSpecs = []arrayFieldSpec{
		{name: "medications", key: "name", fields: []string{"dosage", "frequency", "duration", "quantity", "schedule", "notes"}},
		{name: "symptoms", key: "name", fields: []string{"notes", "duration", "severity"}},
		{name: "diagnosis", key: "name", fields: []string{"notes", "since", "status"}},
		{name: "medicalHistory", key: "name", fields: []string{"type", "notes", "duration", "relation"}},
		{name: "labResults", key: "testname", fields: []string{"value"}},
		{name: "labInvestigation", key: "testname", fields: nil},
	}

	objectFieldSpecs = map[string][]string{
		"vitalsAndBodyComposition": {
			"bloodPressure", "pulse", "temperature", "weight",
			"height", "spo2", "respRate", "ofc",
		},
	}

	scalarFields = []string{"followUp"}

	stringArrayFields = []string{"advice"}
)

const notFoundValue = "(not found)"

// stringifyValue converts any value to a stable display string.
func stringifyValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return "(empty)"
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "(empty)"
		}
		return trimmed
	case []interface{}:
		if len(v) == 0 {
			return "(empty)"
		}
		encoded, _ := json.Marshal(v)
		return string(encoded)
	case map[string]interface{}:
		if len(v) == 0 {
			return "(empty)"
		}
		encoded, _ := json.Marshal(v)
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func normalizeKey(val string) string {
	return strings.ToLower(strings.TrimSpace(val))
}

type indexedItem struct {
	position int
	item     map[string]interface{}
}

// buildItemIndex maps normalized key value to (array position, item).
func buildItemIndex(items []interface{}, keyField string) (map[string]indexedItem, []string) {
	index := map[string]indexedItem{}
	var order []string
	for i, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		rawKey := stringifyRawKey(item[keyField])
		if rawKey == "" {
			continue
		}
		norm := normalizeKey(rawKey)
		if _, exists := index[norm]; !exists {
			order = append(order, norm)
		}
		index[norm] = indexedItem{position: i, item: item}
	}
	return index, order
}

func stringifyRawKey(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// compareArrayField matches items by key then compares sub-fields.
// Iteration order is the union of API-side keys first, then judge-only keys.
func compareArrayField(spec arrayFieldSpec, apiItems, judgeItems []interface{}) []ComparisonEntry {
	var entries []ComparisonEntry

	apiIndex, apiOrder := buildItemIndex(apiItems, spec.key)
	judgeIndex, judgeOrder := buildItemIndex(judgeItems, spec.key)

	allKeys := append([]string{}, apiOrder...)
	for _, k := range judgeOrder {
		if _, inAPI := apiIndex[k]; !inAPI {
			allKeys = append(allKeys, k)
		}
	}

	for _, normKey := range allKeys {
		apiEntry, hasAPI := apiIndex[normKey]
		judgeEntry, hasJudge := judgeIndex[normKey]

		displayKey := normKey
		if hasAPI {
			displayKey = stringifyRawKey(apiEntry.item[spec.key])
		} else if hasJudge {
			displayKey = stringifyRawKey(judgeEntry.item[spec.key])
		}

		switch {
		case hasAPI && hasJudge:
			if len(spec.fields) > 0 {
				for _, sf := range spec.fields {
					apiVal := stringifyValue(apiEntry.item[sf])
					judgeVal := stringifyValue(judgeEntry.item[sf])
					hint := "match"
					if apiVal != judgeVal {
						hint = "mismatch"
					}
					entries = append(entries, ComparisonEntry{
						FieldPath:  fmt.Sprintf("rx.%s[%d].%s", spec.name, apiEntry.position, sf),
						APIValue:   apiVal,
						JudgeValue: judgeVal,
						MatchHint:  hint,
						ItemName:   displayKey,
					})
				}
			} else {
				// No sub-fields configured, just confirm presence.
				entries = append(entries, ComparisonEntry{
					FieldPath:  fmt.Sprintf("rx.%s[%d]", spec.name, apiEntry.position),
					APIValue:   stringifyValue(apiEntry.item[spec.key]),
					JudgeValue: stringifyValue(judgeEntry.item[spec.key]),
					MatchHint:  "match",
					ItemName:   displayKey,
				})
			}
		case hasAPI:
			entries = append(entries, ComparisonEntry{
				FieldPath:  fmt.Sprintf("rx.%s[%d]", spec.name, apiEntry.position),
				APIValue:   stringifyValue(displayKey),
				JudgeValue: notFoundValue,
				MatchHint:  "api_only",
				ItemName:   displayKey,
			})
		default:
			entries = append(entries, ComparisonEntry{
				FieldPath:  fmt.Sprintf("rx.%s[%s]", spec.name, displayKey),
				APIValue:   notFoundValue,
				JudgeValue: stringifyValue(displayKey),
				MatchHint:  "judge_only",
				ItemName:   displayKey,
			})
		}
	}

	return entries
}

func compareObjectField(fieldName string, apiObj, judgeObj map[string]interface{}, subKeys []string) []ComparisonEntry {
	var entries []ComparisonEntry
	for _, sk := range subKeys {
		apiVal := stringifyValue(apiObj[sk])
		judgeVal := stringifyValue(judgeObj[sk])
		hint := "match"
		if apiVal != judgeVal {
			hint = "mismatch"
		}
		entries = append(entries, ComparisonEntry{
			FieldPath:  fmt.Sprintf("rx.%s.%s", fieldName, sk),
			APIValue:   apiVal,
			JudgeValue: judgeVal,
			MatchHint:  hint,
		})
	}
	return entries
}

func compareStringArrayField(fieldName string, apiItems, judgeItems []interface{}) []ComparisonEntry {
	var entries []ComparisonEntry
	maxLen := len(apiItems)
	if len(judgeItems) > maxLen {
		maxLen = len(judgeItems)
	}
	for i := 0; i < maxLen; i++ {
		apiVal := "(empty)"
		if i < len(apiItems) {
			apiVal = stringifyValue(apiItems[i])
		}
		judgeVal := "(empty)"
		if i < len(judgeItems) {
			judgeVal = stringifyValue(judgeItems[i])
		}
		hint := "match"
		if apiVal != judgeVal {
			hint = "mismatch"
		}
		entries = append(entries, ComparisonEntry{
			FieldPath:  fmt.Sprintf("rx.%s[%d]", fieldName, i),
			APIValue:   apiVal,
			JudgeValue: judgeVal,
			MatchHint:  hint,
		})
	}
	return entries
}

func asList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	return nil
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// BuildDeepComparison aligns two structured rx trees and emits a flat,
// ordered list of per-field comparison entries. Pure function, no cycles.
func BuildDeepComparison(apiRx, judgeRx map[string]interface{}) []ComparisonEntry {
	var entries []ComparisonEntry

	for _, spec := range arrayFieldSpecs {
		apiItems := asList(apiRx[spec.name])
		judgeItems := asList(judgeRx[spec.name])
		if len(apiItems) > 0 || len(judgeItems) > 0 {
			entries = append(entries, compareArrayField(spec, apiItems, judgeItems)...)
		}
	}

	for fieldName, subKeys := range objectFieldSpecs {
		apiObj := asMap(apiRx[fieldName])
		judgeObj := asMap(judgeRx[fieldName])
		if len(apiObj) > 0 || len(judgeObj) > 0 {
			if apiObj == nil {
				apiObj = map[string]interface{}{}
			}
			if judgeObj == nil {
				judgeObj = map[string]interface{}{}
			}
			entries = append(entries, compareObjectField(fieldName, apiObj, judgeObj, subKeys)...)
		}
	}

	for _, fieldName := range scalarFields {
		apiVal := apiRx[fieldName]
		judgeVal := judgeRx[fieldName]
		if apiVal != nil || judgeVal != nil {
			a := stringifyValue(apiVal)
			j := stringifyValue(judgeVal)
			hint := "match"
			if a != j {
				hint = "mismatch"
			}
			entries = append(entries, ComparisonEntry{
				FieldPath:  "rx." + fieldName,
				APIValue:   a,
				JudgeValue: j,
				MatchHint:  hint,
			})
		}
	}

	for _, fieldName := range stringArrayFields {
		apiItems := asList(apiRx[fieldName])
		judgeItems := asList(judgeRx[fieldName])
		if len(apiItems) > 0 || len(judgeItems) > 0 {
			entries = append(entries, compareStringArrayField(fieldName, apiItems, judgeItems)...)
		}
	}

	return entries
}

// FormatComparisonForPrompt renders entries as the structured block the
// judge prompt embeds verbatim.
func FormatComparisonForPrompt(entries []ComparisonEntry) string {
	if len(entries) == 0 {
		return "(no structured data fields to compare)"
	}

	var blocks []string
	for i, entry := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "[%d] FIELD: %s\n", i+1, entry.FieldPath)
		if entry.ItemName != "" {
			fmt.Fprintf(&b, "    ITEM:  %s\n", entry.ItemName)
		}
		fmt.Fprintf(&b, "    API:   %s\n", entry.APIValue)
		fmt.Fprintf(&b, "    JUDGE: %s\n", entry.JudgeValue)
		fmt.Fprintf(&b, "    HINT:  %s", entry.MatchHint)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}
