package evaluator

import (
	"encoding/json"

	"gorm.io/datatypes"
)

func decodeJSON(raw datatypes.JSON, dst interface{}) error {
	b, err := raw.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// EncodeFields serializes output fields back into the JSON column type.
func EncodeFields(fields []OutputField) (datatypes.JSON, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
