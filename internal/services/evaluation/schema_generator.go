package evaluation

import "evalforge/internal/core/domain/evaluator"

// GenerateJSONSchema converts a visual output field list into a strict JSON
// schema: every key required, no additional properties.
func GenerateJSONSchema(fields []evaluator.OutputField) map[string]interface{} {
	properties := map[string]interface{}{}
	required := []interface{}{}

	for _, field := range fields {
		properties[field.Key] = generateFieldSchema(field)
		required = append(required, field.Key)
	}

	return map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func generateFieldSchema(field evaluator.OutputField) map[string]interface{} {
	base := map[string]interface{}{}
	if field.Description != "" {
		base["description"] = field.Description
	}

	switch field.Type {
	case "number":
		base["type"] = "number"
	case "boolean":
		base["type"] = "boolean"
	case "array":
		base["type"] = "array"
		base["items"] = generateArrayItemSchema(field)
	default:
		// "text" and anything unrecognized serialize as strings.
		base["type"] = "string"
	}
	return base
}

func generateArrayItemSchema(field evaluator.OutputField) map[string]interface{} {
	itemSchema := field.ArrayItemSchema
	if itemSchema == nil {
		return map[string]interface{}{"type": "string"}
	}

	itemType, _ := itemSchema["itemType"].(string)
	switch itemType {
	case "number":
		return map[string]interface{}{"type": "number"}
	case "boolean":
		return map[string]interface{}{"type": "boolean"}
	case "object":
		props := asList(itemSchema["properties"])
		if len(props) == 0 {
			return map[string]interface{}{"type": "string"}
		}
		objectProperties := map[string]interface{}{}
		objRequired := []interface{}{}
		for _, raw := range props {
			prop := asMap(raw)
			key := getString(prop, "key")
			if key == "" {
				continue
			}
			propSchema := map[string]interface{}{
				"type": stringOrDefault(prop["type"], "string"),
			}
			if desc := getString(prop, "description"); desc != "" {
				propSchema["description"] = desc
			}
			objectProperties[key] = propSchema
			objRequired = append(objRequired, key)
		}
		return map[string]interface{}{
			"type":       "object",
			"properties": objectProperties,
			"required":   objRequired,
		}
	default:
		return map[string]interface{}{"type": "string"}
	}
}
