package jsonx

import "encoding/json"

// DecodeJSON decodes src into dst. src may be raw JSON ([]byte or string) or
// an already-decoded value such as a bus payload map, which is re-encoded
// first.
func DecodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
