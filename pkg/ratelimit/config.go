// Package ratelimit implements per-endpoint request gating with fixed
// windows and cooldown blocks. It keeps the gateway inside each provider's
// published request budget so a burst of cache misses cannot get the
// gateway's API keys throttled or banned.
package ratelimit

import (
	"fmt"
	"time"
)

// Config is the fixed-window budget for one endpoint.
type Config struct {
	// RequestsPerWindow is the number of calls allowed per window.
	RequestsPerWindow int

	// Window is the length of the counting window.
	Window time.Duration

	// Cooldown is how long the endpoint stays blocked once the budget is
	// exceeded. Expiry of the block starts a fresh window.
	Cooldown time.Duration
}

// Validate checks the config for usable values.
func (c Config) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("requests per window must be positive, got %d", c.RequestsPerWindow)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %v", c.Window)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be positive, got %v", c.Cooldown)
	}
	return nil
}

// HighFrequencyProfile suits endpoints polled often, such as spot price
// tickers.
func HighFrequencyProfile() Config {
	return Config{
		RequestsPerWindow: 20,
		Window:            time.Minute,
		Cooldown:          30 * time.Second,
	}
}

// LowFrequencyProfile suits endpoints refreshed rarely, such as sentiment
// indices.
func LowFrequencyProfile() Config {
	return Config{
		RequestsPerWindow: 5,
		Window:            time.Minute,
		Cooldown:          120 * time.Second,
	}
}

// DefaultProfile is the conservative budget applied to endpoints used
// without explicit configuration.
func DefaultProfile() Config {
	return LowFrequencyProfile()
}
