package breaker

import (
	"fmt"
	"time"
)

// Config holds the thresholds and timeouts for one service's circuit.
type Config struct {
	// FailureThreshold is the failure count in Closed that opens the
	// circuit.
	FailureThreshold int

	// SuccessThreshold is the success count in Half-Open that closes the
	// circuit again.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays Open before a single trial
	// call is allowed through.
	OpenTimeout time.Duration

	// ResetTimeout is the quiet period in Closed after which an earlier
	// failure streak no longer counts; the next failure restarts at one.
	ResetTimeout time.Duration
}

// Validate checks the config for usable values.
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("success threshold must be positive, got %d", c.SuccessThreshold)
	}
	if c.OpenTimeout <= 0 {
		return fmt.Errorf("open timeout must be positive, got %v", c.OpenTimeout)
	}
	if c.ResetTimeout <= 0 {
		return fmt.Errorf("reset timeout must be positive, got %v", c.ResetTimeout)
	}
	return nil
}

// CriticalProfile suits feeds the product cannot present without, such as
// the primary price source. It trips fast and retries fast.
func CriticalProfile() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		ResetTimeout:     180 * time.Second,
	}
}

// NonCriticalProfile suits feeds with graceful placeholders, such as
// sentiment indices. It tolerates more failures and backs off longer.
func NonCriticalProfile() Config {
	return Config{
		FailureThreshold: 8,
		SuccessThreshold: 4,
		OpenTimeout:      120 * time.Second,
		ResetTimeout:     600 * time.Second,
	}
}

// DefaultProfile is applied to services used without explicit
// configuration.
func DefaultProfile() Config {
	return NonCriticalProfile()
}
