package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// SeatNumbers is a custom type for handling TEXT[] seat lists in PostgreSQL
type SeatNumbers []string

// Value implements the driver.Valuer interface
func (a SeatNumbers) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return pq.Array([]string(a)).Value()
}

// Scan implements the sql.Scanner interface
func (a *SeatNumbers) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	slice := (*[]string)(a)
	return pq.Array(slice).Scan(src)
}

// Contains reports whether seat is in the list
func (a SeatNumbers) Contains(seat string) bool {
	for _, s := range a {
		if s == seat {
			return true
		}
	}
	return false
}

// jsonValue marshals v for a JSONB column
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// jsonScan unmarshals a JSONB column into dest
func jsonScan(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
	return json.Unmarshal(data, dest)
}
