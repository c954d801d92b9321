package query

import (
	"encoding/json"
	"testing"
	"time"
)

func TestConstraint_MarshalJSON_WithValue(t *testing.T) {
	c := NewConstraint("key", OpEquals, "value")

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"key":"key","constraint_type":"equals","value":"value"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestConstraint_MarshalJSON_WithoutValue(t *testing.T) {
	c := NewConstraint("key", OpIsEmpty, nil)

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `{"key":"key","constraint_type":"is_empty"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2023, 5, 19, 22, 47, 46, 477590000, time.UTC)

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"nil", nil, nil},
		{"string", "value", "value"},
		{"int", 8, "8"},
		{"int64", int64(12), "12"},
		{"float", 8.6, "8.6"},
		{"datetime", ts, "2023-05-19T22:47:46.477590Z"},
		{"date", Date(time.Date(2023, 5, 19, 0, 0, 0, 0, time.UTC)), "2023-05-19"},
		{"bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatValue(tt.value)
			if got != tt.want {
				t.Errorf("FormatValue(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFormatValue_SlicePassesThrough(t *testing.T) {
	got := FormatValue([]string{"a", "b"})

	slice, ok := got.([]string)
	if !ok || len(slice) != 2 {
		t.Fatalf("FormatValue(slice) = %v, want pass-through", got)
	}
}

func TestEncodeConstraints(t *testing.T) {
	tests := []struct {
		name        string
		constraints []Constraint
		want        string
	}{
		{"nil", nil, "[]"},
		{"empty", []Constraint{}, "[]"},
		{
			"single",
			[]Constraint{NewConstraint("age", OpGreaterThan, 18)},
			`[{"key":"age","constraint_type":"greater than","value":"18"}]`,
		},
		{
			"multiple",
			[]Constraint{
				NewConstraint("name", OpTextContains, "jo"),
				NewConstraint("email", OpIsNotEmpty, nil),
			},
			`[{"key":"name","constraint_type":"text contains","value":"jo"},` +
				`{"key":"email","constraint_type":"is_not_empty"}]`,
		},
		{
			"in with list",
			[]Constraint{NewConstraint("status", OpIn, []string{"open", "pending"})},
			`[{"key":"status","constraint_type":"in","value":["open","pending"]}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeConstraints(tt.constraints)
			if err != nil {
				t.Fatalf("EncodeConstraints failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeConstraints = %s, want %s", got, tt.want)
			}
		})
	}
}
