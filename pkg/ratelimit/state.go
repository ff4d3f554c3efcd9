// Package ratelimit tracks the Shopify Admin API leaky bucket and gates
// requests before the store starts answering 429.
// It reads the X-Shopify-Shop-Api-Call-Limit ("used/max") and Retry-After
// response headers.
package ratelimit

import (
	"time"
)

// RedisKeyPrefix namespaces the per-store state hash in Redis.
const RedisKeyPrefix = "shopify:rate_limit"

// Bucket thresholds, in calls remaining.
const (
	// CallsRemainingCritical blocks requests until the bucket has drained.
	CallsRemainingCritical = 2

	// CallsRemainingWarning applies a short delay before each request.
	CallsRemainingWarning = 8

	// CallsRemainingHealthy indicates normal operation.
	CallsRemainingHealthy = 20
)

// LeakRate is the number of calls per second the REST bucket drains.
const LeakRate = 2.0

// MaxRetryAfter caps the window a single Retry-After header can block requests for.
const MaxRetryAfter = 60 * time.Second

// DefaultBucketSize is the standard plan bucket size, used until a response
// tells us otherwise.
const DefaultBucketSize = 40

// RateLimitState represents the last known call-limit bucket of one store.
type RateLimitState struct {
	// CallsUsed is the number of calls currently in the bucket.
	CallsUsed int `json:"calls_used"`

	// CallsMax is the bucket size.
	CallsMax int `json:"calls_max"`

	// BlockedUntil is set from Retry-After on a throttled response.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when at least CallsRemainingHealthy calls are left.
	IsHealthy bool `json:"is_healthy"`
}

// DefaultState returns an empty, healthy bucket.
func DefaultState() *RateLimitState {
	s := &RateLimitState{
		CallsUsed:  0,
		CallsMax:   DefaultBucketSize,
		LastUpdate: time.Now(),
	}
	s.UpdateHealth()
	return s
}

// Remaining returns the calls left in the bucket.
func (s *RateLimitState) Remaining() int {
	return s.CallsMax - s.CallsUsed
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests must wait for the bucket to drain
// or for a Retry-After window to pass.
// When the last response carried Retry-After, that window alone decides.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	if !s.BlockedUntil.IsZero() {
		return time.Now().Before(s.BlockedUntil)
	}
	return s.Remaining() < CallsRemainingCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining() < CallsRemainingWarning && !s.NeedsCriticalBlock()
}

// WaitDuration returns how long to wait before the next request is safe.
// A Retry-After window wins; otherwise it is the time the bucket needs to
// leak back to the warning threshold, counted from LastUpdate.
func (s *RateLimitState) WaitDuration() time.Duration {
	if !s.BlockedUntil.IsZero() {
		return max(time.Until(s.BlockedUntil), 0)
	}

	excess := CallsRemainingWarning - s.Remaining()
	if excess <= 0 {
		return 0
	}

	drain := time.Duration(float64(excess) / LeakRate * float64(time.Second))
	wait := drain - time.Since(s.LastUpdate)
	if wait < 0 {
		return 0
	}
	return wait
}

// UpdateHealth updates IsHealthy from the current bucket level.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining() >= CallsRemainingHealthy && !time.Now().Before(s.BlockedUntil)
}
