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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"deskflow/platform/shared/logger"
)

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, limit, window, logger.New("test")), mr
}

func TestRedisRateLimiterEnforcesLimit(t *testing.T) {
	rl, _ := newRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "alice"), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow(ctx, "alice"))

	// Another caller is unaffected.
	assert.True(t, rl.Allow(ctx, "bob"))
}

func TestRedisRateLimiterWindowSlides(t *testing.T) {
	rl, mr := newRedisLimiter(t, 2, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "alice"))
	assert.True(t, rl.Allow(ctx, "alice"))
	assert.False(t, rl.Allow(ctx, "alice"))

	// After the window passes, the budget is back. miniredis needs the
	// clock nudged for the expiry, and the ZRemRangeByScore cutoff is
	// wall-clock, so old entries age out on the next call.
	mr.FastForward(2 * time.Minute)
	assert.True(t, rl.Allow(ctx, "alice"))
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	rl, mr := newRedisLimiter(t, 1, time.Minute)
	mr.Close()

	// Backend gone: requests pass rather than hard-failing.
	assert.True(t, rl.Allow(context.Background(), "alice"))
}

func TestMemoryRateLimiter(t *testing.T) {
	rl := NewMemoryRateLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "alice"))
	assert.True(t, rl.Allow(ctx, "alice"))
	assert.False(t, rl.Allow(ctx, "alice"))
	assert.True(t, rl.Allow(ctx, "bob"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow(ctx, "alice"))
}
