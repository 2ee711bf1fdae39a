package evaluation

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// toJSONMap round-trips any serializable value through JSON into the gorm
// JSON column type.
func toJSONMap(v interface{}) (datatypes.JSONMap, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, err
	}
	return datatypes.JSONMap(out), nil
}
