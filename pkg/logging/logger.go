// Package logging provides structured logging configuration using zerolog.
// Every package logs through a component logger; HTTP handlers attach a
// request-scoped logger to the request context.
package logging

import (
	"context"
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

// Setup installs the process-wide logger and level and returns it.
// Pretty switches to zerolog's console writer for local runs.
func Setup(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	return log.Logger
}

// parseLevel maps a configured level name onto zerolog. Unknown or empty
// names fall back to info; "warning" is accepted as in most env files.
func parseLevel(level LogLevel) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(string(level)))
	if name == "warning" {
		name = "warn"
	}

	parsed, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

// Component names used across the service.
const (
	ComponentShopify    = "shopify-client"
	ComponentRateLimit  = "ratelimit"
	ComponentPagination = "pagination"
	ComponentReport     = "report"
	ComponentHTTP       = "httpapi"
)

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithRequestID returns a copy of ctx carrying logger tagged with requestID.
func WithRequestID(ctx context.Context, logger zerolog.Logger, requestID string) context.Context {
	if requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	return logger.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or fallback if there is none.
func FromContext(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request flow (pages fetched, batches dispatched)
//   - Call-limit header updates
//   - Worker pool progress
//
// Info: Normal operation events
//   - Reports built
//   - Retried requests that eventually succeeded
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Throttling active (call limit near the bucket size)
//   - Retry attempts and 429 responses
//   - Product lookups excluded from collections
//
// Error: Error conditions requiring attention
//   - Failed reports (fetch or cost batch failure)
//   - Requests that exhausted their retries
//   - Configuration errors
//
// Context Fields:
//   - endpoint: Admin API path with ids collapsed ("/products/{id}.json")
//   - status_code: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - attempt, backoff: retry bookkeeping
//   - page, records: pagination progress
//   - batch, product_id: enrichment lookups
//   - from, to: report date range
//   - duration: elapsed time
//   - request_id: inbound request id (httpapi)
