package bubble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/avachon/bubble-data-client/pkg/cache"
	"github.com/avachon/bubble-data-client/pkg/query"
)

// Response envelopes used by the Data API.
type objectEnvelope struct {
	Response Record `json:"response"`
}

type listEnvelope struct {
	Response Page `json:"response"`
}

type createEnvelope struct {
	ID string `json:"id"`
}

// BulkResult is the outcome for one record of a bulk create. The API
// answers with one JSON status line per submitted record.
type BulkResult struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK reports whether this record was created.
func (r BulkResult) OK() bool {
	return r.Status == "success"
}

// GetByID retrieves one record by its unique id.
// Returns ErrNotFound when the id does not exist.
func (c *Client) GetByID(ctx context.Context, typeName, id string) (Record, error) {
	key := cache.Key{TypeName: NormalizeTypeName(typeName), ObjectID: id}

	if c.cache != nil {
		if data, err := c.cache.Get(ctx, key); err == nil {
			return decodeObject(data)
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("type", typeName).Msg("Cache get error")
		}
	}

	data, err := c.doRequest(ctx, http.MethodGet, c.objURL(typeName, id), nil, nil, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s %q: %w", NormalizeTypeName(typeName), id, ErrNotFound)
		}
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, data); err != nil {
			c.logger.Warn().Err(err).Str("type", typeName).Msg("Cache set error")
		}
	}

	return decodeObject(data)
}

// GetByField retrieves the first record whose field equals value.
// Meant for fields with a uniqueness convention; with duplicates an
// arbitrary match is returned. Returns ErrNotFound on no match.
func (c *Client) GetByField(ctx context.Context, typeName, fieldName string, value any) (Record, error) {
	page, err := c.FetchPage(ctx, typeName, query.Query{
		Constraints:      []query.Constraint{query.NewField(fieldName).Equals(value)},
		Limit:            1,
		ExcludeRemaining: true,
	})
	if err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, fmt.Errorf("%s with %s=%v: %w", NormalizeTypeName(typeName), query.NormalizeFieldName(fieldName), value, ErrNotFound)
	}
	return page.Results[0], nil
}

// FetchPage performs one list request and returns the page as-is.
// Pagination across pages is the caller's (or pkg/pagination's) job.
func (c *Client) FetchPage(ctx context.Context, typeName string, q query.Query) (Page, error) {
	params, err := q.Values()
	if err != nil {
		return Page{}, err
	}

	key := cache.Key{TypeName: NormalizeTypeName(typeName), Params: params}

	if c.cache != nil {
		if data, err := c.cache.Get(ctx, key); err == nil {
			return decodePage(data)
		} else if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("type", typeName).Msg("Cache get error")
		}
	}

	data, err := c.doRequest(ctx, http.MethodGet, c.objURL(typeName), params, nil, "")
	if err != nil {
		return Page{}, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, data); err != nil {
			c.logger.Warn().Err(err).Str("type", typeName).Msg("Cache set error")
		}
	}

	return decodePage(data)
}

// Count returns how many records match the constraints without
// fetching them: a limit=1 probe, count plus remaining.
func (c *Client) Count(ctx context.Context, typeName string, constraints []query.Constraint) (int, error) {
	page, err := c.FetchPage(ctx, typeName, query.Query{
		Constraints: constraints,
		Limit:       1,
	})
	if err != nil {
		return 0, err
	}
	return page.Count + page.Remaining, nil
}

// ForEach walks all pages matching q and calls fn for every record.
// fn returning an error stops the walk and surfaces that error.
func (c *Client) ForEach(ctx context.Context, typeName string, q query.Query, fn func(Record) error) error {
	cursor := q.Cursor
	for {
		page, err := c.FetchPage(ctx, typeName, q.WithCursor(cursor))
		if err != nil {
			return err
		}

		for _, record := range page.Results {
			if err := fn(record); err != nil {
				return err
			}
		}

		// Count guards against a zero-progress loop on a misbehaving
		// backend reporting remaining > 0 with an empty page.
		if page.Remaining == 0 || page.Count == 0 {
			return nil
		}
		cursor = page.Cursor + page.Count
	}
}

// FetchAll retrieves every record matching q into memory. For large
// result sets prefer pkg/pagination with a sink.
func (c *Client) FetchAll(ctx context.Context, typeName string, q query.Query) ([]Record, error) {
	var records []Record
	err := c.ForEach(ctx, typeName, q, func(r Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Create inserts a record and returns its new unique id.
func (c *Client) Create(ctx context.Context, typeName string, fields Record) (string, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, c.objURL(typeName), nil, body, "application/json")
	if err != nil {
		return "", err
	}
	c.invalidate(ctx, typeName)

	var created createEnvelope
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	return created.ID, nil
}

// CreateBulk inserts many records in one request. The request body is
// newline-delimited JSON sent as text/plain; the response carries one
// status line per record, in submission order.
func (c *Client) CreateBulk(ctx context.Context, typeName string, fields []Record) ([]BulkResult, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("bulk create requires at least one record")
	}

	lines := make([]string, 0, len(fields))
	for i, f := range fields {
		line, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		lines = append(lines, string(line))
	}
	body := []byte(strings.Join(lines, "\n"))

	data, err := c.doRequest(ctx, http.MethodPost, c.objURL(typeName, "bulk"), nil, body, "text/plain")
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, typeName)

	var results []BulkResult
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var result BulkResult
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			return results, fmt.Errorf("decode bulk response line %q: %w", line, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// Update modifies the given fields of a record, leaving others as-is.
func (c *Client) Update(ctx context.Context, typeName, id string, fields Record) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	_, err = c.doRequest(ctx, http.MethodPatch, c.objURL(typeName, id), nil, body, "application/json")
	if err != nil {
		return err
	}
	c.invalidate(ctx, typeName)
	return nil
}

// Replace overwrites a record entirely; fields not present are cleared.
func (c *Client) Replace(ctx context.Context, typeName, id string, fields Record) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}

	_, err = c.doRequest(ctx, http.MethodPut, c.objURL(typeName, id), nil, body, "application/json")
	if err != nil {
		return err
	}
	c.invalidate(ctx, typeName)
	return nil
}

// Delete removes one record by id.
func (c *Client) Delete(ctx context.Context, typeName, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, c.objURL(typeName, id), nil, nil, "")
	if err != nil {
		return err
	}
	c.invalidate(ctx, typeName)
	return nil
}

// DeleteMany removes the given records sequentially. Returns the
// number deleted; on error, records before the failure stay deleted.
func (c *Client) DeleteMany(ctx context.Context, typeName string, ids []string) (int, error) {
	for i, id := range ids {
		if err := c.Delete(ctx, typeName, id); err != nil {
			return i, fmt.Errorf("delete %s %q: %w", NormalizeTypeName(typeName), id, err)
		}
	}
	return len(ids), nil
}

// DeleteMatching removes every record matching the constraints.
// Deleting shifts cursors, so it repeatedly takes the first page of
// the remaining matches instead of walking a moving window. An empty
// constraint set is rejected; wiping a table takes the explicit
// DeleteAll.
func (c *Client) DeleteMatching(ctx context.Context, typeName string, constraints []query.Constraint) (int, error) {
	if len(constraints) == 0 {
		return 0, fmt.Errorf("refusing to delete without constraints; use DeleteAll to wipe the table")
	}
	return c.deleteMatching(ctx, typeName, constraints)
}

// DeleteAll removes every record of a type.
func (c *Client) DeleteAll(ctx context.Context, typeName string) (int, error) {
	return c.deleteMatching(ctx, typeName, nil)
}

func (c *Client) deleteMatching(ctx context.Context, typeName string, constraints []query.Constraint) (int, error) {
	deleted := 0
	for {
		page, err := c.FetchPage(ctx, typeName, query.Query{
			Constraints:      constraints,
			ExcludeRemaining: true,
		})
		if err != nil {
			return deleted, err
		}
		if len(page.Results) == 0 {
			return deleted, nil
		}

		for _, record := range page.Results {
			if err := c.Delete(ctx, typeName, record.ID()); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
}

// RunWorkflow triggers an API Workflow endpoint and returns its
// response payload.
func (c *Client) RunWorkflow(ctx context.Context, name string, params Record) (Record, error) {
	var body []byte
	if params != nil {
		var err error
		body, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode workflow params: %w", err)
		}
	}

	data, err := c.doRequest(ctx, http.MethodPost, c.wfURL(name), nil, body, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeObject(data)
}

func decodeObject(data []byte) (Record, error) {
	var envelope objectEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode object response: %w", err)
	}
	return envelope.Response, nil
}

func decodePage(data []byte) (Page, error) {
	var envelope listEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Page{}, fmt.Errorf("decode list response: %w", err)
	}
	return envelope.Response, nil
}
