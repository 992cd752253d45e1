package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attributes is an open-ended map for forward-compatible optional fields that
// have no typed home yet. It is stored as JSONB.
type Attributes map[string]any

// Value implements driver.Valuer
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Attributes) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("attributes: unsupported source type %T", src)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, a)
}
