package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Bool is a boolean that tolerates the legacy representations older
// snapshots and clients produced for is_used: true/false, "true"/"1",
// 1/0. Everything is normalized at the read boundary so used tickets
// are never silently hidden.
type Bool bool

func (b Bool) Bool() bool {
	return bool(b)
}

func (b Bool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(b))
}

func (b *Bool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = Bool(v)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = Bool(n == 1)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = Bool(s == "true" || s == "1")
		return nil
	}

	return fmt.Errorf("models: cannot unmarshal %s into Bool", data)
}

// Scan implements sql.Scanner with the same tolerance as UnmarshalJSON.
func (b *Bool) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*b = false
	case bool:
		*b = Bool(v)
	case int64:
		*b = Bool(v == 1)
	case float64:
		*b = Bool(v == 1)
	case string:
		*b = Bool(v == "true" || v == "1")
	case []byte:
		s := string(v)
		*b = Bool(s == "true" || s == "1")
	default:
		return fmt.Errorf("models: cannot scan %T into Bool", value)
	}
	return nil
}

func (b Bool) Value() (driver.Value, error) {
	return bool(b), nil
}
