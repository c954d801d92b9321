package bubble

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError represents a Bubble Data API error response.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string

	// RetryAfter is the cooldown Bubble requested on 429 responses.
	RetryAfter time.Duration

	// Body is the raw response body, kept for callers that need the
	// full error payload.
	Body []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("bubble %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
}

// classifyStatus categorizes an HTTP status for retry decisions and
// observability. Bubble signals rate limiting with 429.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// errorBody covers the error payload shapes the Data API produces:
// 400/404 carry {"body": {"status", "message"}}, 401 carries
// {"translation"}, workflow errors a bare {"message"}.
type errorBody struct {
	Body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"body"`
	Translation string `json:"translation"`
	Message     string `json:"message"`
}

// parseAPIError builds an APIError from a non-2xx response.
func parseAPIError(status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Class:      classifyStatus(status),
		Body:       body,
		Message:    http.StatusText(status),
	}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Body.Message != "":
			apiErr.Message = parsed.Body.Message
		case parsed.Translation != "":
			apiErr.Message = parsed.Translation
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		}
	}

	if status == http.StatusTooManyRequests {
		apiErr.RetryAfter = parseRetryAfter(header)
	}

	return apiErr
}

// parseRetryAfter reads the Retry-After header, seconds form only
// (Bubble does not send HTTP dates here).
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// errorClassOf extracts the class from an error. Anything that is not
// an APIError came from the transport and counts as a network error.
func errorClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassClient:
		// 4xx errors are deterministic, retrying wastes requests.
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
