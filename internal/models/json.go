package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Metadata is an open-ended key/value bag persisted as JSON.
type Metadata map[string]any

// Bool reads a flag, accepting JSON booleans and their string forms.
func (m Metadata) Bool(key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return marshalJSON(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	*m = Metadata{}
	return scanJSON(src, m)
}

// StringList is an ordered list of strings persisted as a JSON array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return marshalJSON(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	*l = StringList{}
	return scanJSON(src, l)
}

// Scores holds optional named numeric review dimensions.
type Scores map[string]float64

// Value implements driver.Valuer.
func (s Scores) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	return marshalJSON(s)
}

// Scan implements sql.Scanner.
func (s *Scores) Scan(src any) error {
	*s = Scores{}
	return scanJSON(src, s)
}

func marshalJSON(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dest any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
