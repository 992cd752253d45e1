package entities

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Location is a pickup or destination point for a dispatch
type Location struct {
	Label      string     `json:"label,omitempty"`
	Street     string     `json:"street,omitempty"`
	City       string     `json:"city,omitempty"`
	State      string     `json:"state,omitempty"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	FacilityID *string    `json:"facility_id,omitempty"`
	Extra      Attributes `json:"extra,omitempty"`
}

// Empty reports whether the location carries neither an address nor coordinates
func (l Location) Empty() bool {
	return l.Street == "" && l.Label == "" && l.FacilityID == nil && l.Latitude == 0 && l.Longitude == 0
}

// Value implements driver.Valuer
func (l Location) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *Location) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	case nil:
		*l = Location{}
		return nil
	}
	return fmt.Errorf("location: unsupported source type %T", src)
}
