package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: time.Now()},
			maxAge:   time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-2 * time.Minute)},
			maxAge:   time.Minute,
			expected: true,
		},
		{
			name:     "just under max age",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-50 * time.Second)},
			maxAge:   time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRateLimitState_Thresholds(t *testing.T) {
	tests := []struct {
		name           string
		callsUsed      int
		callsMax       int
		expectBlock    bool
		expectThrottle bool
		expectHealthy  bool
	}{
		{
			name:           "empty bucket",
			callsUsed:      0,
			callsMax:       40,
			expectBlock:    false,
			expectThrottle: false,
			expectHealthy:  true,
		},
		{
			name:           "at healthy threshold",
			callsUsed:      40 - CallsRemainingHealthy,
			callsMax:       40,
			expectBlock:    false,
			expectThrottle: false,
			expectHealthy:  true,
		},
		{
			name:           "warning zone",
			callsUsed:      35,
			callsMax:       40,
			expectBlock:    false,
			expectThrottle: true,
			expectHealthy:  false,
		},
		{
			name:           "at critical threshold - throttle only",
			callsUsed:      40 - CallsRemainingCritical,
			callsMax:       40,
			expectBlock:    false,
			expectThrottle: true,
			expectHealthy:  false,
		},
		{
			name:           "critical",
			callsUsed:      39,
			callsMax:       40,
			expectBlock:    true,
			expectThrottle: false,
			expectHealthy:  false,
		},
		{
			name:           "plus plan bucket",
			callsUsed:      39,
			callsMax:       80,
			expectBlock:    false,
			expectThrottle: false,
			expectHealthy:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				CallsUsed:  tt.callsUsed,
				CallsMax:   tt.callsMax,
				LastUpdate: time.Now(),
			}
			state.UpdateHealth()

			if got := state.NeedsCriticalBlock(); got != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v (used=%d/%d)", got, tt.expectBlock, tt.callsUsed, tt.callsMax)
			}
			if got := state.NeedsThrottling(); got != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v (used=%d/%d)", got, tt.expectThrottle, tt.callsUsed, tt.callsMax)
			}
			if state.IsHealthy != tt.expectHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectHealthy)
			}
		})
	}
}

func TestRateLimitState_BlockedUntil(t *testing.T) {
	state := &RateLimitState{
		CallsUsed:    0,
		CallsMax:     40,
		BlockedUntil: time.Now().Add(2 * time.Second),
		LastUpdate:   time.Now(),
	}
	state.UpdateHealth()

	if !state.NeedsCriticalBlock() {
		t.Error("pending Retry-After should block even with an empty bucket")
	}
	if state.IsHealthy {
		t.Error("state inside a Retry-After window should not be healthy")
	}

	wait := state.WaitDuration()
	if wait <= time.Second || wait > 2*time.Second {
		t.Errorf("WaitDuration() = %v, want about 2s", wait)
	}
}

func TestRateLimitState_WaitDuration(t *testing.T) {
	tests := []struct {
		name      string
		callsUsed int
		age       time.Duration
		min       time.Duration
		max       time.Duration
	}{
		{
			name:      "healthy bucket",
			callsUsed: 10,
			min:       0,
			max:       0,
		},
		{
			name:      "full bucket drains to warning level",
			callsUsed: 40,
			// 8 calls at 2/s
			min: 3900 * time.Millisecond,
			max: 4 * time.Second,
		},
		{
			name:      "elapsed time counts towards the drain",
			callsUsed: 40,
			age:       3 * time.Second,
			min:       900 * time.Millisecond,
			max:       time.Second,
		},
		{
			name:      "old observation needs no wait",
			callsUsed: 40,
			age:       10 * time.Second,
			min:       0,
			max:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				CallsUsed:  tt.callsUsed,
				CallsMax:   40,
				LastUpdate: time.Now().Add(-tt.age),
			}

			wait := state.WaitDuration()
			if wait < tt.min || wait > tt.max {
				t.Errorf("WaitDuration() = %v, want between %v and %v", wait, tt.min, tt.max)
			}
		})
	}
}

func TestDefaultState(t *testing.T) {
	state := DefaultState()

	if state.CallsMax != DefaultBucketSize {
		t.Errorf("CallsMax = %d, want %d", state.CallsMax, DefaultBucketSize)
	}
	if state.Remaining() != DefaultBucketSize {
		t.Errorf("Remaining() = %d, want %d", state.Remaining(), DefaultBucketSize)
	}
	if !state.IsHealthy {
		t.Error("default state should be healthy")
	}
}

func TestRateLimitState_ElapsedRetryAfterOverridesFullBucket(t *testing.T) {
	state := &RateLimitState{
		CallsUsed:    40,
		CallsMax:     40,
		BlockedUntil: time.Now().Add(-10 * time.Millisecond),
		LastUpdate:   time.Now().Add(-time.Second),
	}

	if state.NeedsCriticalBlock() {
		t.Error("an elapsed Retry-After window should release the block")
	}
	if !state.NeedsThrottling() {
		t.Error("a full bucket should still be throttled")
	}
	if wait := state.WaitDuration(); wait != 0 {
		t.Errorf("WaitDuration() = %v, want 0", wait)
	}
}
