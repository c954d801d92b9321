package query

import "strings"

// Field is a fluent constraint builder for one Bubble field. Field
// names are normalized the way the Data API exposes them: lowercased
// with spaces stripped, so Field("Rental Unit") targets "rentalunit".
type Field struct {
	name string
}

// NewField creates a field with its name normalized.
func NewField(name string) Field {
	return Field{name: NormalizeFieldName(name)}
}

// NormalizeFieldName lowercases a field name and strips spaces.
func NormalizeFieldName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}

// Name returns the normalized field name, usable as a sort field.
func (f Field) Name() string {
	return f.name
}

func (f Field) Equals(value any) Constraint {
	return NewConstraint(f.name, OpEquals, value)
}

func (f Field) NotEquals(value any) Constraint {
	return NewConstraint(f.name, OpNotEqual, value)
}

func (f Field) IsEmpty() Constraint {
	return NewConstraint(f.name, OpIsEmpty, nil)
}

func (f Field) IsNotEmpty() Constraint {
	return NewConstraint(f.name, OpIsNotEmpty, nil)
}

func (f Field) TextContains(text string) Constraint {
	return NewConstraint(f.name, OpTextContains, text)
}

func (f Field) NotTextContains(text string) Constraint {
	return NewConstraint(f.name, OpNotTextContains, text)
}

func (f Field) GreaterThan(value any) Constraint {
	return NewConstraint(f.name, OpGreaterThan, value)
}

func (f Field) LessThan(value any) Constraint {
	return NewConstraint(f.name, OpLessThan, value)
}

// In matches when the field value is one of the given values.
func (f Field) In(values ...any) Constraint {
	return NewConstraint(f.name, OpIn, values)
}

// NotIn matches when the field value is none of the given values.
func (f Field) NotIn(values ...any) Constraint {
	return NewConstraint(f.name, OpNotIn, values)
}

// Contains matches list fields containing the value.
func (f Field) Contains(value any) Constraint {
	return NewConstraint(f.name, OpContains, value)
}

// NotContains matches list fields not containing the value.
func (f Field) NotContains(value any) Constraint {
	return NewConstraint(f.name, OpNotContains, value)
}

// GeographicSearch matches address fields within a radius. The value
// shape is Bubble's {"origin_address", "range"} object.
func (f Field) GeographicSearch(value any) Constraint {
	return NewConstraint(f.name, OpGeographicSearch, value)
}
