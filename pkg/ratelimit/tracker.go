package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Response headers read by the tracker.
const (
	HeaderCallLimit  = "X-Shopify-Shop-Api-Call-Limit"
	HeaderRetryAfter = "Retry-After"
)

// StateTTL bounds how long a bucket observation is trusted.
// A full 40 call bucket drains in 20s, so anything older is meaningless.
const StateTTL = 60 * time.Second

// Prometheus metrics for rate limit tracking.
var (
	callLimitUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shopify_call_limit_used",
		Help: "Calls currently in the Admin API leaky bucket",
	})

	callLimitMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shopify_call_limit_max",
		Help: "Size of the Admin API leaky bucket",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_rate_limit_waits_total",
		Help: "Total number of requests held back until the bucket drained",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_rate_limit_throttles_total",
		Help: "Total number of requests delayed due to a nearly full bucket",
	})
)

// Tracker monitors the call-limit bucket of one store and gates requests.
//
// With a Redis client the state is shared by every process talking to the
// same store; without one it is kept in memory.
type Tracker struct {
	redis  *redis.Client
	key    string
	logger zerolog.Logger

	// ThrottleDelay is applied before each request while in the warning zone.
	ThrottleDelay time.Duration

	mu    sync.Mutex
	local *RateLimitState
}

// NewTracker creates a new rate limit tracker for store.
// redisClient may be nil.
func NewTracker(redisClient *redis.Client, store string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		key:           RedisKeyPrefix + ":" + store,
		logger:        logger,
		ThrottleDelay: 500 * time.Millisecond,
	}
}

// Key returns the Redis key holding this store's state.
func (t *Tracker) Key() string {
	return t.key
}

// GetState returns the current bucket state.
// Returns a default healthy state if nothing recent has been observed.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.local == nil || t.local.IsStale(StateTTL) {
			return DefaultState(), nil
		}
		state := *t.local
		return &state, nil
	}

	fields, err := t.redis.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if len(fields) == 0 {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return DefaultState(), nil
	}

	state, err := stateFromFields(fields)
	if err != nil {
		return nil, err
	}
	if state.IsStale(StateTTL) {
		return DefaultState(), nil
	}

	return state, nil
}

// UpdateFromHeaders parses the call-limit headers of a response and stores the
// resulting state. A malformed Retry-After is returned as an error after the
// call limit of the same response has been stored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	limitStr := headers.Get(HeaderCallLimit)
	retryStr := headers.Get(HeaderRetryAfter)
	if limitStr == "" && retryStr == "" {
		// Not every endpoint reports the bucket
		return nil
	}

	now := time.Now()
	state := DefaultState()
	state.LastUpdate = now

	if limitStr != "" {
		used, size, err := ParseCallLimit(limitStr)
		if err != nil {
			return err
		}
		state.CallsUsed = used
		state.CallsMax = size
	} else if prev, err := t.GetState(ctx); err == nil {
		state.CallsUsed = prev.CallsUsed
		state.CallsMax = prev.CallsMax
	}

	// a bad Retry-After must not discard the call limit read from the same response
	var retryErr error
	if retryStr != "" {
		wait, err := ParseRetryAfter(retryStr)
		if err != nil {
			retryErr = err
		} else {
			state.BlockedUntil = now.Add(min(wait, MaxRetryAfter))
		}
	}
	state.UpdateHealth()

	if err := t.store(ctx, state); err != nil {
		return err
	}

	callLimitUsed.Set(float64(state.CallsUsed))
	callLimitMax.Set(float64(state.CallsMax))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Warn().
			Int("calls_used", state.CallsUsed).
			Int("calls_max", state.CallsMax).
			Time("blocked_until", state.BlockedUntil).
			Msg("Call limit CRITICAL - requests will wait for the bucket to drain")
	case state.NeedsThrottling():
		t.logger.Info().
			Int("calls_used", state.CallsUsed).
			Int("calls_max", state.CallsMax).
			Msg("Call limit WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("calls_used", state.CallsUsed).
			Int("calls_max", state.CallsMax).
			Msg("Call limit state updated")
	}

	return retryErr
}

// Acquire blocks until a request may be sent.
// It waits out a full bucket or a Retry-After window and adds ThrottleDelay in
// the warning zone. Returns ctx.Err() if the context ends while waiting.
func (t *Tracker) Acquire(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return err
	}

	var wait time.Duration
	switch {
	case state.NeedsCriticalBlock():
		wait = state.WaitDuration()
		rateLimitWaitsTotal.Inc()
		t.logger.Warn().
			Int("calls_remaining", state.Remaining()).
			Dur("wait_duration", wait).
			Msg("Call limit critical - holding request")
	case state.NeedsThrottling():
		wait = t.ThrottleDelay
		rateLimitThrottlesTotal.Inc()
		t.logger.Debug().
			Int("calls_remaining", state.Remaining()).
			Msg("Call limit warning - throttling request")
	}

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Tracker) store(ctx context.Context, state *RateLimitState) error {
	if t.redis == nil {
		t.mu.Lock()
		t.local = state
		t.mu.Unlock()
		return nil
	}

	pipe := t.redis.TxPipeline()
	pipe.HSet(ctx, t.key, map[string]interface{}{
		"calls_used":    state.CallsUsed,
		"calls_max":     state.CallsMax,
		"blocked_until": state.BlockedUntil.UnixMilli(),
		"last_update":   state.LastUpdate.UnixMilli(),
	})
	pipe.Expire(ctx, t.key, StateTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

func stateFromFields(fields map[string]string) (*RateLimitState, error) {
	ints := make(map[string]int64, len(fields))
	for _, name := range []string{"calls_used", "calls_max", "blocked_until", "last_update"} {
		raw, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("rate limit state: missing field %q", name)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rate limit state: parse %s: %w", name, err)
		}
		ints[name] = v
	}

	state := &RateLimitState{
		CallsUsed:  int(ints["calls_used"]),
		CallsMax:   int(ints["calls_max"]),
		LastUpdate: time.UnixMilli(ints["last_update"]),
	}
	if ms := ints["blocked_until"]; ms > 0 {
		state.BlockedUntil = time.UnixMilli(ms)
	}
	state.UpdateHealth()

	return state, nil
}

// ParseCallLimit parses an X-Shopify-Shop-Api-Call-Limit value such as "32/40".
func ParseCallLimit(value string) (used, size int, err error) {
	usedStr, sizeStr, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return 0, 0, fmt.Errorf("parse %s header %q: missing '/'", HeaderCallLimit, value)
	}

	used, err = strconv.Atoi(strings.TrimSpace(usedStr))
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s header: %w", HeaderCallLimit, err)
	}
	size, err = strconv.Atoi(strings.TrimSpace(sizeStr))
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s header: %w", HeaderCallLimit, err)
	}
	if size <= 0 || used < 0 {
		return 0, 0, fmt.Errorf("parse %s header %q: out of range", HeaderCallLimit, value)
	}

	return used, size, nil
}

// ParseRetryAfter parses a Retry-After value in (possibly fractional) seconds
// or as an HTTP-date. A date in the past yields zero.
func ParseRetryAfter(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		at, dateErr := http.ParseTime(value)
		if dateErr != nil {
			return 0, fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
		}
		return max(0, time.Until(at)), nil
	}
	if seconds < 0 {
		return 0, fmt.Errorf("parse %s header %q: negative", HeaderRetryAfter, value)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
