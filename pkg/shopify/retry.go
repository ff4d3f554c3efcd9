package shopify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sternrassler/shop-insights/pkg/logging"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// RetryPolicy picks the retry configuration for an error class.
type RetryPolicy func(ErrorClass) RetryConfig

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass returns the appropriate retry configuration for an error class.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassRateLimit:
		// the bucket leaks 2 calls/s; usually overridden by Retry-After
		return RetryConfig{
			MaxAttempts:       5,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// retryWithBackoff executes fn with exponential backoff.
// classify is asked after every failure, so the policy can change between
// attempts (a 503 followed by a 429 switches to the rate limit schedule).
// A Retry-After carried by an *APIError replaces the computed backoff, capped
// at MaxBackoff.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error, classify func(error) ErrorClass) error {
	if policy == nil {
		policy = RetryConfigForErrorClass
	}

	logger := logging.NewLogger(logging.ComponentShopify)

	var lastErr error
	var errorClass ErrorClass
	var backoff time.Duration

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = classify(err)

		if !shouldRetry(errorClass) {
			return lastErr
		}

		config := policy(errorClass)
		if attempt >= config.MaxAttempts {
			retryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, lastErr)
		}

		if attempt == 1 || backoff <= 0 {
			backoff = config.InitialBackoff
		}

		retriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait = min(apiErr.RetryAfter, config.MaxBackoff)
		}
		retryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(wait.Seconds())

		logger.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
}
