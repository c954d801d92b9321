// Package testutil provides testing utilities for the Bubble data client.
package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a canned mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBubble is a configurable mock Bubble Data API server for testing.
// It keeps per-type object tables in memory and implements the real
// cursor/limit pagination contract, so clients exercise the same
// request sequences they would against a live app.
type MockBubble struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	tables   map[string][]map[string]any
	nextID   int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockBubble creates a new mock Bubble server with empty tables.
func NewMockBubble() *MockBubble {
	mock := &MockBubble{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		tables:   make(map[string][]map[string]any),
		nextID:   1,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockBubble) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBubble) Close() {
	m.server.Close()
}

// Reset clears tracking counters and all object tables.
func (m *MockBubble) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.tables = make(map[string][]map[string]any)
	m.nextID = 1
}

// SetHandler sets a custom handler for a specific path, bypassing the
// in-memory tables for that path.
func (m *MockBubble) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockBubble) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// Seed inserts objects into a type's table, assigning fresh unique IDs.
// Returns the assigned IDs in insertion order.
func (m *MockBubble) Seed(typeName string, objects ...map[string]any) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(objects))
	for _, obj := range objects {
		stored := make(map[string]any, len(obj)+1)
		for k, v := range obj {
			stored[k] = v
		}
		id := m.newID()
		stored["_id"] = id
		m.tables[typeName] = append(m.tables[typeName], stored)
		ids = append(ids, id)
	}
	return ids
}

// TableSize returns the number of objects currently stored for a type.
func (m *MockBubble) TableSize(typeName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[typeName])
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBubble) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockBubble) newID() string {
	id := fmt.Sprintf("%d000x%d", 1693000000+m.nextID, m.nextID)
	m.nextID++
	return id
}

// defaultHandler routes requests to the in-memory object tables.
func (m *MockBubble) defaultHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/1.1")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 2 && parts[0] == "obj":
		m.handleCollection(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "obj" && parts[2] == "bulk":
		m.handleCollection(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "obj":
		m.handleObject(w, r, parts[1], parts[2])
	case len(parts) == 2 && parts[0] == "wf":
		m.handleWorkflow(w, r, parts[1])
	default:
		writeBubbleError(w, http.StatusNotFound, "NOT_FOUND", "Unrecognized path")
	}
}

func (m *MockBubble) handleCollection(w http.ResponseWriter, r *http.Request, typeName string) {
	switch r.Method {
	case http.MethodGet:
		m.handleList(w, r, typeName)
	case http.MethodPost:
		m.handleCreate(w, r, typeName)
	default:
		writeBubbleError(w, http.StatusNotFound, "METHOD_NOT_ALLOWED", "Unsupported method")
	}
}

type mockConstraint struct {
	Key            string `json:"key"`
	ConstraintType string `json:"constraint_type"`
	Value          any    `json:"value"`
}

func (m *MockBubble) handleList(w http.ResponseWriter, r *http.Request, typeName string) {
	q := r.URL.Query()
	cursor, _ := strconv.Atoi(q.Get("cursor"))
	limit := 100
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	var constraints []mockConstraint
	if raw := q.Get("constraints"); raw != "" {
		json.Unmarshal([]byte(raw), &constraints)
	}

	m.mu.RLock()
	matched := make([]map[string]any, 0)
	for _, obj := range m.tables[typeName] {
		if matchesConstraints(obj, constraints) {
			matched = append(matched, obj)
		}
	}
	m.mu.RUnlock()

	total := len(matched)
	if cursor > total {
		cursor = total
	}
	end := cursor + limit
	if end > total {
		end = total
	}
	page := matched[cursor:end]
	remaining := total - end

	results := make([]json.RawMessage, 0, len(page))
	for _, obj := range page {
		raw, _ := json.Marshal(obj)
		results = append(results, raw)
	}

	resp := map[string]any{
		"response": map[string]any{
			"results":   results,
			"cursor":    cursor,
			"count":     len(page),
			"remaining": remaining,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// matchesConstraints applies "equals" constraints only; other operators
// are server-side concerns the mock does not need to reproduce.
func matchesConstraints(obj map[string]any, constraints []mockConstraint) bool {
	for _, c := range constraints {
		if c.ConstraintType != "equals" {
			continue
		}
		if fmt.Sprintf("%v", obj[c.Key]) != fmt.Sprintf("%v", c.Value) {
			return false
		}
	}
	return true
}

func (m *MockBubble) handleCreate(w http.ResponseWriter, r *http.Request, typeName string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBubbleError(w, http.StatusBadRequest, "INVALID_BODY", "Could not read body")
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		m.handleBulkCreate(w, typeName, body)
		return
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		writeBubbleError(w, http.StatusBadRequest, "INVALID_BODY", "Body is not valid JSON")
		return
	}

	m.mu.Lock()
	id := m.newID()
	obj["_id"] = id
	m.tables[typeName] = append(m.tables[typeName], obj)
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (m *MockBubble) handleBulkCreate(w http.ResponseWriter, typeName string, body []byte) {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}

	statuses := make([]string, 0, len(lines))
	for _, line := range lines {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			statuses = append(statuses, `{"status":"error","message":"Invalid JSON"}`)
			continue
		}
		m.mu.Lock()
		id := m.newID()
		obj["_id"] = id
		m.tables[typeName] = append(m.tables[typeName], obj)
		m.mu.Unlock()
		statuses = append(statuses, fmt.Sprintf(`{"status":"success","id":"%s"}`, id))
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strings.Join(statuses, "\n")))
}

func (m *MockBubble) handleObject(w http.ResponseWriter, r *http.Request, typeName, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.tables[typeName]
	idx := -1
	for i, obj := range table {
		if obj["_id"] == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeBubbleError(w, http.StatusNotFound, "MISSING_DATA", "Missing object of type "+typeName)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"response": table[idx]})
	case http.MethodPatch:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeBubbleError(w, http.StatusBadRequest, "INVALID_BODY", "Body is not valid JSON")
			return
		}
		for k, v := range patch {
			table[idx][k] = v
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPut:
		var replacement map[string]any
		if err := json.NewDecoder(r.Body).Decode(&replacement); err != nil {
			writeBubbleError(w, http.StatusBadRequest, "INVALID_BODY", "Body is not valid JSON")
			return
		}
		replacement["_id"] = id
		table[idx] = replacement
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		m.tables[typeName] = append(table[:idx], table[idx+1:]...)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeBubbleError(w, http.StatusNotFound, "METHOD_NOT_ALLOWED", "Unsupported method")
	}
}

func (m *MockBubble) handleWorkflow(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		writeBubbleError(w, http.StatusNotFound, "METHOD_NOT_ALLOWED", "Unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response": map[string]any{"workflow": name, "status": "success"},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeBubbleError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"statusCode":%d,"body":{"status":"%s","message":"%s"}}`, status, code, message)
}

// NewRateLimitResponse creates a 429 Too Many Requests response with a
// Retry-After header.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"statusCode":429,"body":{"status":"RATE_LIMITED","message":"Too many requests"}}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"statusCode":500,"body":{"status":"UNKNOWN_ERROR","message":"Something went wrong"}}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewUnauthorizedResponse creates a 401 response in the translation shape
// Bubble uses for bad API tokens.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"translation":"Invalid or expired API token"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
