// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// TestLimiter_WindowSequence walks one key through a full window.
func TestLimiter_WindowSequence(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	const limit = 5
	tests := []struct {
		call          int
		wantAllowed   bool
		wantRemaining int
	}{
		{1, true, 4},
		{2, true, 3},
		{3, true, 2},
		{4, true, 1},
		{5, true, 0},
		{6, false, 0},
		{7, false, 0},
	}

	for _, tt := range tests {
		d := l.Allow("doubt:alice", limit, time.Minute)
		if d.Allowed != tt.wantAllowed {
			t.Errorf("call %d: Allowed = %v, want %v", tt.call, d.Allowed, tt.wantAllowed)
		}
		if d.Remaining != tt.wantRemaining {
			t.Errorf("call %d: Remaining = %d, want %d", tt.call, d.Remaining, tt.wantRemaining)
		}
		if tt.wantAllowed && d.Err() != nil {
			t.Errorf("call %d: Err() = %v, want nil", tt.call, d.Err())
		}
		if !tt.wantAllowed && !errors.Is(d.Err(), ErrRateLimited) {
			t.Errorf("call %d: Err() = %v, want ErrRateLimited", tt.call, d.Err())
		}
	}

	if got := l.Allow("doubt:alice", limit, time.Minute).RetryAfter(clock.Now()); got != time.Minute {
		t.Errorf("RetryAfter() = %v, want %v", got, time.Minute)
	}
}

func TestLimiter_KeysIndependent(t *testing.T) {
	l := New(WithClock(newFakeClock().Now))

	steps := []struct {
		key  string
		want bool
	}{
		{"a", true},
		{"a", false},
		{"b", true},
		{"b", false},
		{"a", false},
	}
	for i, step := range steps {
		if got := l.Allow(step.key, 1, time.Minute).Allowed; got != step.want {
			t.Errorf("step %d: Allow(%q).Allowed = %v, want %v", i, step.key, got, step.want)
		}
	}
}

func TestLimiter_WindowExpiry(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	l.Allow("k", 2, time.Minute)
	l.Allow("k", 2, time.Minute)
	if l.Allow("k", 2, time.Minute).Allowed {
		t.Fatal("third call inside the window was allowed")
	}

	// Exactly at the reset instant the old window still applies.
	clock.Advance(time.Minute)
	if l.Allow("k", 2, time.Minute).Allowed {
		t.Error("call at the reset instant was allowed")
	}

	clock.Advance(time.Millisecond)
	d := l.Allow("k", 2, time.Minute)
	if !d.Allowed {
		t.Error("call after the reset instant was denied")
	}
	if d.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", d.Remaining)
	}
}

// TestLimiter_BoundaryBurst shows the documented fixed-window imprecision:
// 2x limit requests can pass across one boundary.
func TestLimiter_BoundaryBurst(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))

	allowed := 0
	for i := 0; i < 3; i++ {
		if l.Allow("k", 3, time.Second).Allowed {
			allowed++
		}
	}
	clock.Advance(time.Second + time.Nanosecond)
	for i := 0; i < 3; i++ {
		if l.Allow("k", 3, time.Second).Allowed {
			allowed++
		}
	}
	if allowed != 6 {
		t.Errorf("allowed = %d, want 6", allowed)
	}
}

func TestLimiter_NonPositiveLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
	}{
		{"zero", 0},
		{"negative", -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			d := l.Allow("k", tt.limit, time.Minute)
			if d.Allowed {
				t.Errorf("Allow(limit=%d).Allowed = true, want false", tt.limit)
			}
			if d.Remaining != 0 {
				t.Errorf("Allow(limit=%d).Remaining = %d, want 0", tt.limit, d.Remaining)
			}
			if l.Len() != 0 {
				t.Errorf("Len() = %d, want 0", l.Len())
			}
		})
	}
}

func TestLimiter_LazyCleanup(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now), WithCleanupInterval(time.Minute))

	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("user-%d", i), 5, 10*time.Second)
	}
	if l.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", l.Len())
	}

	// Windows expired, but the sweep interval has not elapsed.
	clock.Advance(30 * time.Second)
	l.Allow("fresh", 5, 10*time.Second)
	if l.Len() != 11 {
		t.Errorf("Len() before sweep = %d, want 11", l.Len())
	}

	clock.Advance(31 * time.Second)
	l.Allow("fresh", 5, 10*time.Second)
	if l.Len() != 1 {
		t.Errorf("Len() after sweep = %d, want 1", l.Len())
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := New()
	l.Allow("k", 1, time.Minute)
	if l.Allow("k", 1, time.Minute).Allowed {
		t.Fatal("second call was allowed with limit 1")
	}

	l.Reset()
	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", l.Len())
	}
	if !l.Allow("k", 1, time.Minute).Allowed {
		t.Error("call after Reset was denied")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New()
	const limit = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := l.Check(context.Background(), "shared", limit, time.Hour); d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != limit {
		t.Errorf("allowed = %d, want %d", allowed, limit)
	}
}

// TestRedisLimiter runs when DOUBTRUN_TEST_REDIS_ADDR points at a server.
func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("DOUBTRUN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DOUBTRUN_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := fmt.Sprintf("doubtrun-test-%d", time.Now().UnixNano())
	l := NewRedisLimiter(client, prefix)

	for i := 1; i <= 3; i++ {
		d, err := l.Check(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3-i, d.Remaining)
	}
	d, err := l.Check(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, d.ResetAt.After(time.Now()))

	client.Del(ctx, prefix+":k")
}
