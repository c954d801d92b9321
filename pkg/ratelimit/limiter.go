// Package ratelimit paces Bubble Data API requests. Bubble enforces a
// per-app request budget and answers 429 with a Retry-After header
// when it is exhausted. The limiter combines a local request pacer
// with an optional Redis-shared cooldown so every process talking to
// the same app observes one backoff window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit pacing.
var (
	bubbleRateLimitThrottles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bubble_rate_limit_throttles_total",
		Help: "Total number of requests delayed by the local pacer",
	})

	bubbleRateLimitCooldowns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bubble_rate_limit_cooldowns_total",
		Help: "Total number of 429 cooldown windows observed",
	})

	bubbleCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bubble_rate_limit_cooldown_seconds",
		Help: "Seconds remaining in the current shared cooldown window",
	})
)

// redisKeyCooldown stores the shared cooldown flag. Its Redis TTL is
// the remaining cooldown duration.
const redisKeyCooldown = "bubble:rate_limit:cooldown"

// DefaultRetryAfter is the cooldown applied when a 429 response
// carries no usable Retry-After header.
const DefaultRetryAfter = 5 * time.Second

// Limiter paces outgoing requests.
type Limiter struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu       sync.Mutex
	minGap   time.Duration
	lastSend time.Time
}

// NewLimiter creates a limiter allowing at most rps requests per
// second locally. rps <= 0 disables local pacing. redisClient may be
// nil, which disables the shared cooldown.
func NewLimiter(rps int, redisClient *redis.Client, logger zerolog.Logger) *Limiter {
	var gap time.Duration
	if rps > 0 {
		gap = time.Second / time.Duration(rps)
	}
	return &Limiter{
		redis:  redisClient,
		logger: logger,
		minGap: gap,
	}
}

// Wait blocks until the next request may be sent: first it sits out
// any shared cooldown window, then it enforces the local request gap.
// It returns early with the context error on cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	if wait, err := l.cooldownRemaining(ctx); err != nil {
		// Redis being down must not stop traffic, pacing is best effort.
		l.logger.Warn().Err(err).Msg("Cooldown check failed, continuing without shared state")
	} else if wait > 0 {
		l.logger.Debug().
			Dur("cooldown", wait).
			Msg("Waiting out shared cooldown window")
		bubbleCooldownSeconds.Set(wait.Seconds())
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
		bubbleCooldownSeconds.Set(0)
	}

	if l.minGap <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	next := l.lastSend.Add(l.minGap)
	if next.Before(now) {
		next = now
	}
	l.lastSend = next
	l.mu.Unlock()

	if wait := time.Until(next); wait > 0 {
		bubbleRateLimitThrottles.Inc()
		return sleepCtx(ctx, wait)
	}
	return nil
}

// ObserveRetryAfter records a 429 cooldown. With Redis configured the
// window is shared; otherwise it only affects this limiter via the
// local pacer clock.
func (l *Limiter) ObserveRetryAfter(ctx context.Context, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}

	bubbleRateLimitCooldowns.Inc()
	l.logger.Warn().
		Dur("retry_after", retryAfter).
		Msg("Rate limited by Bubble, entering cooldown")

	l.mu.Lock()
	if until := time.Now().Add(retryAfter); until.After(l.lastSend) {
		l.lastSend = until
	}
	l.mu.Unlock()

	if l.redis == nil {
		return
	}
	if err := l.redis.Set(ctx, redisKeyCooldown, "1", retryAfter).Err(); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to publish shared cooldown")
	}
}

// cooldownRemaining returns how long the shared cooldown still holds.
func (l *Limiter) cooldownRemaining(ctx context.Context) (time.Duration, error) {
	if l.redis == nil {
		return 0, nil
	}

	ttl, err := l.redis.TTL(ctx, redisKeyCooldown).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown ttl: %w", err)
	}
	// -2 key missing, -1 no expiry; neither blocks.
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
