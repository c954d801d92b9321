// Package query models Bubble Data API search constraints and list
// query parameters, and serializes them into the wire format the API
// expects (a JSON array in the "constraints" query parameter).
package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Operator is a Bubble search constraint type.
// See https://manual.bubble.io/core-resources/api/data-api#search-constraints
type Operator string

const (
	OpEquals           Operator = "equals"
	OpNotEqual         Operator = "not equal"
	OpIsEmpty          Operator = "is_empty"
	OpIsNotEmpty       Operator = "is_not_empty"
	OpTextContains     Operator = "text contains"
	OpNotTextContains  Operator = "not text contains"
	OpGreaterThan      Operator = "greater than"
	OpLessThan         Operator = "less than"
	OpIn               Operator = "in"
	OpNotIn            Operator = "not in"
	OpContains         Operator = "contains"
	OpNotContains      Operator = "not contains"
	OpGeographicSearch Operator = "geographic_search"
)

// Constraint is a key/operator/value triple evaluated server-side.
// Zero-value operators (is_empty, is_not_empty) carry no value and the
// "value" member is omitted from the serialized form.
type Constraint struct {
	Key      string
	Operator Operator
	Value    any
}

// NewConstraint builds a constraint with its value normalized to the
// representation Bubble expects (numbers stringified, timestamps in
// microsecond UTC format).
func NewConstraint(key string, op Operator, value any) Constraint {
	return Constraint{
		Key:      key,
		Operator: op,
		Value:    FormatValue(value),
	}
}

// timestampLayout matches Bubble's expected timestamp encoding
// (microsecond precision, trailing Z).
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// dateLayout is used for date-only values, see Date.
const dateLayout = "2006-01-02"

// Date marks a time value as date-only so it serializes as YYYY-MM-DD
// instead of a full timestamp.
type Date time.Time

// FormatValue normalizes a constraint value for the wire:
// strings pass through, integers and floats become their decimal
// string, time.Time becomes a microsecond UTC timestamp, Date becomes
// YYYY-MM-DD. Slices pass through untouched and serialize as JSON
// arrays (used with the "in"/"not in" operators). nil stays nil.
func FormatValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(timestampLayout)
	case Date:
		return time.Time(v).Format(dateLayout)
	case bool, []string, []any, []int, []float64:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return v
	}
}

// constraintJSON is the wire shape of one constraint.
type constraintJSON struct {
	Key      string   `json:"key"`
	Operator Operator `json:"constraint_type"`
	Value    any      `json:"value,omitempty"`
}

// MarshalJSON serializes the constraint, omitting "value" only when it
// is nil so that legitimate falsy values (empty string, "0") survive.
func (c Constraint) MarshalJSON() ([]byte, error) {
	cj := constraintJSON{Key: c.Key, Operator: c.Operator}
	if c.Value != nil {
		cj.Value = c.Value
	}
	return json.Marshal(cj)
}

// EncodeConstraints serializes constraints into the JSON array the
// "constraints" query parameter carries. A nil or empty slice encodes
// as "[]"; the parameter is always sent.
func EncodeConstraints(constraints []Constraint) (string, error) {
	if len(constraints) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(constraints)
	if err != nil {
		return "", fmt.Errorf("encode constraints: %w", err)
	}
	return string(data), nil
}
