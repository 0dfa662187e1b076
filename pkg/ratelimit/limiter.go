package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tradewatch/market-gateway/pkg/logging"
)

// Prometheus metrics for rate limit gating.
var (
	rateLimitAllowedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limit_allowed_total",
		Help: "Total number of requests allowed through the rate limiter",
	}, []string{"endpoint"})

	rateLimitBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limit_blocked_total",
		Help: "Total number of requests refused or made to wait by the rate limiter",
	}, []string{"endpoint"})

	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit slot",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"endpoint"})
)

// maxSleepIncrement caps a single blocking sleep inside WaitForLimit so a
// waiting caller stays responsive to cancellation and shutdown.
const maxSleepIncrement = 10 * time.Second

// tracker holds the fixed-window state for one endpoint. Each tracker owns
// its own lock; contention stays local to an endpoint.
type tracker struct {
	mu           sync.Mutex
	cfg          Config
	windowStart  time.Time
	currentCount int
	blockedUntil time.Time
}

// evaluate runs one gating decision at the given time. It returns whether
// the request may proceed and, when refused, how long until the endpoint is
// worth retrying. The counter can only exceed the budget in the same motion
// that starts the cooldown block.
func (t *tracker) evaluate(now time.Time) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A lapsed block clears into a fresh window
	if !t.blockedUntil.IsZero() {
		if now.Before(t.blockedUntil) {
			return false, t.blockedUntil.Sub(now)
		}
		t.blockedUntil = time.Time{}
		t.windowStart = now
		t.currentCount = 0
	}

	// Roll the window before evaluating
	if now.Sub(t.windowStart) >= t.cfg.Window {
		t.windowStart = now
		t.currentCount = 0
	}

	t.currentCount++
	if t.currentCount <= t.cfg.RequestsPerWindow {
		return true, 0
	}

	t.blockedUntil = now.Add(t.cfg.Cooldown)
	return false, t.cfg.Cooldown
}

// Limiter gates outbound provider calls per named endpoint.
//
// Endpoints register eagerly through ConfigureEndpoint or lazily with the
// conservative DefaultProfile on first use. No two endpoints share state.
type Limiter struct {
	mu       sync.RWMutex
	trackers map[string]*tracker
	logger   zerolog.Logger
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		trackers: make(map[string]*tracker),
		logger:   logging.NewLogger("ratelimit"),
	}
}

// ConfigureEndpoint registers or replaces the budget for an endpoint.
// Replacing a budget resets the endpoint's window and any active block.
func (l *Limiter) ConfigureEndpoint(endpoint string, cfg Config) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint name cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configure endpoint %s: %w", endpoint, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.trackers[endpoint] = &tracker{cfg: cfg, windowStart: time.Now()}

	l.logger.Debug().
		Str("endpoint", endpoint).
		Int("requests_per_window", cfg.RequestsPerWindow).
		Dur("window", cfg.Window).
		Dur("cooldown", cfg.Cooldown).
		Msg("endpoint configured")
	return nil
}

// trackerFor returns the endpoint's tracker, auto-registering unconfigured
// endpoints with the default profile.
func (l *Limiter) trackerFor(endpoint string) *tracker {
	l.mu.RLock()
	tr, ok := l.trackers[endpoint]
	l.mu.RUnlock()
	if ok {
		return tr
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if tr, ok := l.trackers[endpoint]; ok {
		return tr
	}
	tr = &tracker{cfg: DefaultProfile(), windowStart: time.Now()}
	l.trackers[endpoint] = tr
	l.logger.Debug().Str("endpoint", endpoint).Msg("endpoint auto-registered with default profile")
	return tr
}

// IsAllowed runs one non-blocking gating decision for the endpoint.
// A refusal means the endpoint is inside a cooldown block or this call
// exhausted the window budget and started one.
func (l *Limiter) IsAllowed(endpoint string) bool {
	allowed, retryAfter := l.trackerFor(endpoint).evaluate(time.Now())
	if allowed {
		rateLimitAllowedTotal.WithLabelValues(endpoint).Inc()
		return true
	}

	rateLimitBlockedTotal.WithLabelValues(endpoint).Inc()
	l.logger.Debug().
		Str("endpoint", endpoint).
		Dur("retry_after", retryAfter).
		Msg("request refused by rate limit")
	return false
}

// WaitForLimit blocks until the endpoint grants a slot or ctx is done.
// While blocked it sleeps in bounded increments, never longer than
// maxSleepIncrement at a time.
func (l *Limiter) WaitForLimit(ctx context.Context, endpoint string) error {
	tr := l.trackerFor(endpoint)
	start := time.Now()
	waited := false

	for {
		allowed, retryAfter := tr.evaluate(time.Now())
		if allowed {
			rateLimitAllowedTotal.WithLabelValues(endpoint).Inc()
			if waited {
				rateLimitWaitSeconds.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			}
			return nil
		}

		if !waited {
			waited = true
			rateLimitBlockedTotal.WithLabelValues(endpoint).Inc()
			l.logger.Warn().
				Str("endpoint", endpoint).
				Dur("retry_after", retryAfter).
				Msg("rate limit reached, waiting for cooldown")
		}

		sleep := retryAfter
		if sleep <= 0 {
			sleep = 10 * time.Millisecond
		}
		if sleep > maxSleepIncrement {
			sleep = maxSleepIncrement
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
