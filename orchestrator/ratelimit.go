// Copyright 2025 DeskFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"deskflow/platform/shared/logger"
)

// RateLimiter enforces a per-caller request budget.
type RateLimiter interface {
	// Allow reports whether the caller may proceed. Implementations
	// fail open: an unhealthy limiter backend must not take the
	// service down.
	Allow(ctx context.Context, callerID string) bool
}

// RedisRateLimiter implements a sliding-window rate limit shared across
// replicas. Each caller gets a sorted set of request timestamps; the
// window slides per request via ZRemRangeByScore.
type RedisRateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	log    *logger.Logger
}

// NewRedisRateLimiter creates a limiter allowing limit requests per
// window per caller.
func NewRedisRateLimiter(client redis.UniversalClient, limit int, window time.Duration, log *logger.Logger) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{client: client, limit: limit, window: window, log: log}
}

// Allow checks and records one request for the caller. Redis errors
// fail open.
func (rl *RedisRateLimiter) Allow(ctx context.Context, callerID string) bool {
	key := "deskflow:ratelimit:" + callerID
	now := time.Now()
	windowStart := now.Add(-rl.window)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8]),
	})
	pipe.Expire(ctx, key, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.log.Warn("", "rate limiter unavailable, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return true
	}

	if countCmd.Val() >= int64(rl.limit) {
		rateLimitedTotal.Inc()
		return false
	}
	return true
}

// MemoryRateLimiter is a per-process fallback for deployments without
// Redis. Same sliding-window semantics, no cross-replica sharing.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	callers map[string][]time.Time
	limit   int
	window  time.Duration
}

// NewMemoryRateLimiter creates an in-process limiter.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryRateLimiter{
		callers: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
	}
}

// Allow checks and records one request for the caller.
func (rl *MemoryRateLimiter) Allow(_ context.Context, callerID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	kept := rl.callers[callerID][:0]
	for _, ts := range rl.callers[callerID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.callers[callerID] = kept
		rateLimitedTotal.Inc()
		return false
	}

	rl.callers[callerID] = append(kept, now)
	return true
}

// noopRateLimiter allows everything. Used when limiting is disabled.
type noopRateLimiter struct{}

func (noopRateLimiter) Allow(context.Context, string) bool { return true }
