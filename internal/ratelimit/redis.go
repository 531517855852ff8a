// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments the counter and starts the window on first hit.
// Returns {count, pttl}.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter is a fixed-window limiter backed by Redis, so every process
// sharing the server sees the same counts.
type RedisLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
	now       func() time.Time
}

// NewRedisLimiter wraps client. keyPrefix namespaces the counters
// (default "ratelimit").
func NewRedisLimiter(client redis.UniversalClient, keyPrefix string) *RedisLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit"
	}
	return &RedisLimiter{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// Check implements Backend. Denied requests still increment the counter;
// the observable allowed/remaining sequence matches Limiter.
func (r *RedisLimiter) Check(ctx context.Context, key string, limit int, period time.Duration) (Decision, error) {
	now := r.now()
	if limit <= 0 {
		return Decision{Allowed: false, Remaining: 0, Limit: limit, ResetAt: now.Add(period)}, nil
	}

	res, err := incrScript.Run(ctx, r.client, []string{r.keyPrefix + ":" + key}, period.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}

	count, pttl := int(res[0]), res[1]
	if pttl < 0 {
		pttl = period.Milliseconds()
	}

	return Decision{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		Limit:     limit,
		ResetAt:   now.Add(time.Duration(pttl) * time.Millisecond),
	}, nil
}
