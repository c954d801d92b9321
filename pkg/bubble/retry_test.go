package bubble

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fastRetry keeps test backoffs in the millisecond range.
func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), fastRetry(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return &APIError{StatusCode: 503, Class: ErrorClassServer}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_ClientErrorNotRetried(t *testing.T) {
	calls := 0
	apiErr := &APIError{StatusCode: 400, Class: ErrorClassClient, Message: "bad constraint"}
	err := retryWithBackoff(context.Background(), zerolog.Nop(), fastRetry(3), func() error {
		calls++
		return apiErr
	})
	if !errors.Is(err, apiErr) {
		t.Errorf("error = %v, want the original APIError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (client errors are deterministic)", calls)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), fastRetry(3), func() error {
		calls++
		return &APIError{StatusCode: 500, Class: ErrorClassServer}
	})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retryWithBackoff(ctx, zerolog.Nop(), cfg, func() error {
			calls++
			return &APIError{StatusCode: 500, Class: ErrorClassServer}
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("error = %v, want ErrContextCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop on context cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancelled during first backoff)", calls)
	}
}

func TestRetryWithBackoff_RetryAfterOverridesBackoff(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Nanosecond,
		MaxBackoff:        time.Nanosecond,
		BackoffMultiplier: 1.0,
	}

	start := time.Now()
	calls := 0
	err := retryWithBackoff(context.Background(), zerolog.Nop(), cfg, func() error {
		calls++
		if calls == 1 {
			return &APIError{
				StatusCode: http.StatusTooManyRequests,
				Class:      ErrorClassRateLimit,
				RetryAfter: 100 * time.Millisecond,
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 100ms (Retry-After honored)", elapsed)
	}
}

func TestRetryConfigForClass(t *testing.T) {
	tests := []struct {
		class       ErrorClass
		wantInitial time.Duration
	}{
		{ErrorClassServer, 1 * time.Second},
		{ErrorClassRateLimit, 5 * time.Second},
		{ErrorClassNetwork, 2 * time.Second},
		{ErrorClassClient, 1 * time.Second},
	}

	for _, tt := range tests {
		cfg := retryConfigForClass(tt.class)
		if cfg.InitialBackoff != tt.wantInitial {
			t.Errorf("retryConfigForClass(%q).InitialBackoff = %v, want %v", tt.class, cfg.InitialBackoff, tt.wantInitial)
		}
		if cfg.MaxAttempts < 1 {
			t.Errorf("retryConfigForClass(%q).MaxAttempts = %d", tt.class, cfg.MaxAttempts)
		}
	}
}
