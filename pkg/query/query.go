package query

import (
	"fmt"
	"net/url"
	"strconv"
)

// Pagination bounds enforced by the Data API.
const (
	// DefaultLimit is the page size used when none is set.
	DefaultLimit = 100

	// MaxLimit is the largest page size the API accepts.
	MaxLimit = 100
)

// Query describes one list request against a Bubble table: server-side
// constraints, ordering and the pagination window.
type Query struct {
	// Constraints filter results server-side. Empty means all records.
	Constraints []Constraint

	// SortField orders results by a field. Empty means API default order.
	SortField string

	// Descending reverses the sort order.
	Descending bool

	// Cursor is the rank of the first record to return.
	Cursor int

	// Limit is the page size (1..100). Zero means DefaultLimit.
	Limit int

	// ExcludeRemaining asks the API to skip the exact remaining count,
	// which is cheaper when only the page itself matters.
	ExcludeRemaining bool
}

// EffectiveLimit returns the page size with the default applied.
func (q Query) EffectiveLimit() int {
	if q.Limit == 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Validate checks the pagination window bounds.
func (q Query) Validate() error {
	if q.Cursor < 0 {
		return fmt.Errorf("cursor must be >= 0 (got %d)", q.Cursor)
	}
	if q.Limit < 0 || q.Limit > MaxLimit {
		return fmt.Errorf("limit must be in 1..%d (got %d)", MaxLimit, q.Limit)
	}
	return nil
}

// Values encodes the query into URL parameters for the list endpoint.
// The constraints parameter is always present, "[]" when unconstrained.
func (q Query) Values() (url.Values, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	constraints, err := EncodeConstraints(q.Constraints)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("constraints", constraints)
	params.Set("cursor", strconv.Itoa(q.Cursor))
	params.Set("limit", strconv.Itoa(q.EffectiveLimit()))
	if q.SortField != "" {
		params.Set("sort_field", q.SortField)
		params.Set("descending", strconv.FormatBool(q.Descending))
	}
	if q.ExcludeRemaining {
		params.Set("exclude_remaining", "true")
	}
	return params, nil
}

// WithCursor returns a copy of the query positioned at cursor.
func (q Query) WithCursor(cursor int) Query {
	q.Cursor = cursor
	return q
}
