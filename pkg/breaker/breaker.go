// Package breaker implements per-service circuit breaking for upstream
// provider calls. Each named service gets an independent three-state
// machine (Closed, Open, Half-Open) so one failing provider stops burning
// calls and latency budgets without affecting any other.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tradewatch/market-gateway/pkg/logging"
)

// Prometheus metrics for circuit state tracking.
var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_breaker_state",
		Help: "Circuit state per service: 0 closed, 1 open, 2 half-open",
	}, []string{"service"})

	breakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_breaker_transitions_total",
		Help: "Total number of circuit state transitions",
	}, []string{"service", "to"})

	breakerRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_breaker_rejected_total",
		Help: "Total number of calls rejected by an open circuit",
	}, []string{"service"})
)

// ErrCircuitOpen signals that a service's circuit is refusing calls. The
// aggregator matches on it to skip to the next provider without wasting a
// network call.
var ErrCircuitOpen = errors.New("circuit open")

// State is the position of one service's circuit.
type State int

const (
	// StateClosed lets calls proceed while counting failures.
	StateClosed State = iota

	// StateOpen refuses all calls until the open timeout lapses.
	StateOpen

	// StateHalfOpen lets a single trial call probe the service.
	StateHalfOpen
)

// String returns the state name used in logs and health reports.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// tracker is the state machine for one service. Each tracker owns its own
// lock; contention stays local to a service.
type tracker struct {
	mu            sync.Mutex
	service       string
	cfg           Config
	state         State
	failureCount  int
	successCount  int
	lastFailure   time.Time
	lastSuccess   time.Time
	stateChange   time.Time
	halfOpenProbe bool
}

// CircuitBreaker tracks circuits for any number of named services.
//
// Services register eagerly through Configure or lazily with DefaultProfile
// on first use.
type CircuitBreaker struct {
	mu       sync.RWMutex
	trackers map[string]*tracker
	logger   zerolog.Logger
}

// New creates an empty circuit breaker.
func New() *CircuitBreaker {
	return &CircuitBreaker{
		trackers: make(map[string]*tracker),
		logger:   logging.NewLogger("breaker"),
	}
}

// Configure registers or replaces the circuit config for a service.
// Replacing a config resets the service to Closed.
func (b *CircuitBreaker) Configure(service string, cfg Config) error {
	if service == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configure service %s: %w", service, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackers[service] = &tracker{
		service:     service,
		cfg:         cfg,
		state:       StateClosed,
		stateChange: time.Now(),
	}
	breakerState.WithLabelValues(service).Set(float64(StateClosed))

	b.logger.Debug().
		Str("service", service).
		Int("failure_threshold", cfg.FailureThreshold).
		Int("success_threshold", cfg.SuccessThreshold).
		Dur("open_timeout", cfg.OpenTimeout).
		Msg("service configured")
	return nil
}

// trackerFor returns the service's tracker, auto-registering unconfigured
// services with the default profile.
func (b *CircuitBreaker) trackerFor(service string) *tracker {
	b.mu.RLock()
	tr, ok := b.trackers[service]
	b.mu.RUnlock()
	if ok {
		return tr
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if tr, ok := b.trackers[service]; ok {
		return tr
	}
	tr = &tracker{
		service:     service,
		cfg:         DefaultProfile(),
		state:       StateClosed,
		stateChange: time.Now(),
	}
	b.trackers[service] = tr
	b.logger.Debug().Str("service", service).Msg("service auto-registered with default profile")
	return tr
}

// CanProceed reports whether a call to the service may go out. An Open
// circuit whose timeout has lapsed flips to Half-Open here and grants
// exactly one trial; further calls are refused until that trial's outcome
// is recorded.
func (b *CircuitBreaker) CanProceed(service string) bool {
	tr := b.trackerFor(service)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	now := time.Now()

	switch tr.state {
	case StateClosed:
		return true

	case StateOpen:
		if now.Sub(tr.stateChange) < tr.cfg.OpenTimeout {
			breakerRejectedTotal.WithLabelValues(tr.service).Inc()
			return false
		}
		b.transition(tr, StateHalfOpen, now)
		tr.halfOpenProbe = true
		return true

	case StateHalfOpen:
		if tr.halfOpenProbe {
			// a trial is already in flight
			breakerRejectedTotal.WithLabelValues(tr.service).Inc()
			return false
		}
		tr.halfOpenProbe = true
		return true
	}
	return false
}

// RecordSuccess feeds a successful call outcome into the service's circuit.
// In Closed it is bookkeeping only; in Half-Open it counts toward closing
// the circuit.
func (b *CircuitBreaker) RecordSuccess(service string) {
	tr := b.trackerFor(service)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	now := time.Now()
	tr.lastSuccess = now

	if tr.state != StateHalfOpen {
		return
	}

	tr.successCount++
	if tr.successCount >= tr.cfg.SuccessThreshold {
		b.transition(tr, StateClosed, now)
		return
	}
	// trial succeeded, release the next one
	tr.halfOpenProbe = false
}

// RecordFailure feeds a failed call outcome into the service's circuit.
// Reaching the failure threshold in Closed opens the circuit; any failure
// in Half-Open reopens it with fresh counters.
func (b *CircuitBreaker) RecordFailure(service string) {
	tr := b.trackerFor(service)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	now := time.Now()

	switch tr.state {
	case StateClosed:
		// a quiet period expires the old streak
		if !tr.lastFailure.IsZero() && now.Sub(tr.lastFailure) >= tr.cfg.ResetTimeout {
			tr.failureCount = 0
		}
		tr.lastFailure = now
		tr.failureCount++
		if tr.failureCount >= tr.cfg.FailureThreshold {
			b.transition(tr, StateOpen, now)
		}

	case StateHalfOpen:
		tr.lastFailure = now
		b.transition(tr, StateOpen, now)

	case StateOpen:
		tr.lastFailure = now
	}
}

// transition moves the tracker into a new state and resets the counters the
// new state starts fresh with. Callers hold the tracker lock.
func (b *CircuitBreaker) transition(tr *tracker, to State, now time.Time) {
	from := tr.state
	tr.state = to
	tr.stateChange = now
	tr.halfOpenProbe = false

	switch to {
	case StateOpen, StateClosed:
		tr.failureCount = 0
		tr.successCount = 0
	case StateHalfOpen:
		tr.successCount = 0
	}

	breakerState.WithLabelValues(tr.service).Set(float64(to))
	breakerTransitionsTotal.WithLabelValues(tr.service, to.String()).Inc()

	event := b.logger.Info()
	if to == StateOpen {
		event = b.logger.Warn()
	}
	event.
		Str("service", tr.service).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit state changed")
}

// State returns the service's current circuit state.
func (b *CircuitBreaker) State(service string) State {
	tr := b.trackerFor(service)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.state
}

// HealthCheck returns the current state of every registered service.
func (b *CircuitBreaker) HealthCheck() map[string]State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	states := make(map[string]State, len(b.trackers))
	for name, tr := range b.trackers {
		tr.mu.Lock()
		states[name] = tr.state
		tr.mu.Unlock()
	}
	return states
}
