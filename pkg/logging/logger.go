// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, tier, TTL)
//   - Promotions between cache tiers
//   - Rate limiter window resets and counter state
//   - Provider call attempts within a fallback chain
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Shared tier recovering to remote mode
//   - Circuit breaker closing after recovery
//   - Aggregation summaries (duration, point count)
//
// Warn: Warning conditions that don't prevent operation
//   - Shared tier switching to fallback mode
//   - Circuit breaker opening for a service
//   - Rate limiter entering a cooldown block
//   - Provider failures that still have fallbacks left
//   - Partial cache writes (one tier failed)
//
// Error: Error conditions requiring attention
//   - A data point exhausting its whole provider chain
//   - Cache writes failing on both tiers
//   - Invalid configuration discovered at runtime
//
// Context Fields:
//   - component: subsystem name (cache, ratelimit, breaker, aggregator, gateway)
//   - key: cache key
//   - endpoint: rate limiter endpoint name
//   - service: circuit breaker service name
//   - point: aggregator data point name
//   - provider: upstream provider name
//   - status_code: upstream HTTP status code
//   - duration: operation duration
//   - error_class: provider error classification (client, server, network, validation)
