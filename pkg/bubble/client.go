// Package bubble provides a client for the Bubble.io Data API: typed
// record CRUD, constrained queries and cursor pagination. The HTTP
// transport is supplied by the caller through the Doer interface; the
// client only builds requests and interprets responses.
package bubble

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avachon/bubble-data-client/pkg/cache"
	"github.com/avachon/bubble-data-client/pkg/ratelimit"
)

// APIVersion is the Data API version the client speaks.
const APIVersion = "1.1"

// Prometheus metrics for client operations.
var (
	bubbleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bubble_requests_total",
		Help: "Total Bubble requests by endpoint and status",
	}, []string{"endpoint", "status"})

	bubbleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bubble_request_duration_seconds",
		Help:    "Bubble request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	bubbleErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bubble_errors_total",
		Help: "Total Bubble errors by class",
	}, []string{"class"})
)

// Doer executes HTTP requests. *http.Client satisfies it; callers may
// substitute any transport with its own timeout or proxy policy.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Record is one Bubble thing. The API is schemaless, so records are
// maps; typed decoding is the caller's concern.
type Record map[string]any

// ID returns the record's unique id ("_id" field).
func (r Record) ID() string {
	id, _ := r["_id"].(string)
	return id
}

// Page is one window of a list query.
type Page struct {
	Results []Record `json:"results"`

	// Cursor is the rank of the first result in this page.
	Cursor int `json:"cursor"`

	// Count is the number of results in this page.
	Count int `json:"count"`

	// Remaining is how many matching records come after this page.
	// Zero when ExcludeRemaining was requested.
	Remaining int `json:"remaining"`
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the app root, e.g. "https://myapp.bubbleapps.io".
	BaseURL string

	// APIToken is attached as a bearer token when non-empty. Token
	// lifecycle (issuing, rotation) is out of scope for this client.
	APIToken string

	// AppVersion selects the deployed branch: "live" hits production,
	// anything else is inserted as /version-{AppVersion}.
	AppVersion string

	// HTTP executes requests. Defaults to an *http.Client with a 30s
	// timeout.
	HTTP Doer

	// Redis enables the response cache and cross-process rate limit
	// cooldown when set.
	Redis *redis.Client

	// CacheTTL is how long GET responses stay cached. Zero disables
	// caching. Requires Redis.
	CacheTTL time.Duration

	// RateLimit caps outgoing requests per second. Zero means unpaced.
	RateLimit int

	// Retry overrides the per-error-class retry policy when non-nil.
	Retry *RetryConfig
}

// DefaultConfig returns a safe default configuration for a live app.
func DefaultConfig(baseURL, apiToken string) Config {
	return Config{
		BaseURL:    baseURL,
		APIToken:   apiToken,
		AppVersion: "live",
	}
}

// Client is the Bubble Data API client.
type Client struct {
	http    Doer
	base    string
	token   string
	cache   *cache.Manager
	limiter *ratelimit.Limiter
	retry   *RetryConfig
	logger  zerolog.Logger
}

// New creates a new Data API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base URL %q is not an absolute URL", cfg.BaseURL)
	}
	if cfg.CacheTTL > 0 && cfg.Redis == nil {
		return nil, fmt.Errorf("cache TTL requires a redis client")
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "live"
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := log.With().Str("component", "bubble-client").Logger()

	var cacheManager *cache.Manager
	if cfg.CacheTTL > 0 {
		cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AppVersion != "live" {
		base += "/version-" + cfg.AppVersion
	}
	base += "/api/" + APIVersion

	return &Client{
		http:    httpClient,
		base:    base,
		token:   cfg.APIToken,
		cache:   cacheManager,
		limiter: ratelimit.NewLimiter(cfg.RateLimit, cfg.Redis, logger),
		retry:   cfg.Retry,
		logger:  logger,
	}, nil
}

// NormalizeTypeName converts a display table name into its Data API
// path form: lowercased, spaces stripped.
func NormalizeTypeName(typeName string) string {
	return strings.ReplaceAll(strings.ToLower(typeName), " ", "")
}

// objURL builds the /obj endpoint URL for a (normalized) type with
// optional trailing segments (record id, "bulk").
func (c *Client) objURL(typeName string, segments ...string) string {
	parts := append([]string{c.base, "obj", NormalizeTypeName(typeName)}, segments...)
	return strings.Join(parts, "/")
}

// wfURL builds the API Workflow endpoint URL.
func (c *Client) wfURL(name string) string {
	return c.base + "/wf/" + name
}

// doRequest performs one logical API call: rate limit pacing, request
// construction, retry with backoff, error decoding. Returns the raw
// response body on success.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, params url.Values, body []byte, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := endpointLabel(rawURL)
	start := time.Now()
	defer func() {
		bubbleRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Msg("Executing Data API request")

	var respBody []byte
	err := retryWithBackoff(ctx, c.logger, c.retry, func() error {
		req, err := c.newRequest(ctx, method, rawURL, params, body, contentType)
		if err != nil {
			// Request construction cannot succeed on retry either.
			return &APIError{StatusCode: 0, Class: ErrorClassClient, Message: err.Error()}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			bubbleErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			bubbleRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			bubbleErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return fmt.Errorf("read response body: %w", err)
		}

		bubbleRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			apiErr := parseAPIError(resp.StatusCode, resp.Header, data)
			bubbleErrorsTotal.WithLabelValues(string(apiErr.Class)).Inc()

			if apiErr.Class == ErrorClassRateLimit {
				c.limiter.ObserveRetryAfter(ctx, apiErr.RetryAfter)
			}

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(apiErr.Class)).
				Msg("Data API request error")
			return apiErr
		}

		respBody = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	return respBody, nil
}

// newRequest builds one HTTP request attempt.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, params url.Values, body []byte, contentType string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// invalidate drops cached responses for a type after a mutation.
func (c *Client) invalidate(ctx context.Context, typeName string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateType(ctx, NormalizeTypeName(typeName)); err != nil {
		c.logger.Warn().Err(err).Str("type", typeName).Msg("Cache invalidation failed")
	}
}

// endpointLabel reduces a URL to its path for metric labels, keeping
// cardinality bounded to endpoints rather than full URLs.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
