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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"deskflow/platform/shared/logger"
)

// DecisionCache memoizes classifier selections in Redis. Identical
// messages route the same way until the registry generation changes,
// which saves a model call on repeated questions. Cache errors degrade
// to a miss; the cache must never take routing down with it.
type DecisionCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *logger.Logger
}

// NewDecisionCache creates a decision cache. ttl <= 0 defaults to one
// hour.
func NewDecisionCache(client redis.UniversalClient, ttl time.Duration, log *logger.Logger) *DecisionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DecisionCache{client: client, ttl: ttl, log: log}
}

// cacheKey hashes the normalized message together with the registry
// generation, so a reload invalidates all prior decisions.
func (c *DecisionCache) cacheKey(message string, generation uint64) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(message))))
	return fmt.Sprintf("deskflow:route:%d:%s", generation, hex.EncodeToString(sum[:]))
}

// Get returns a cached agent id for the message, if present.
func (c *DecisionCache) Get(ctx context.Context, message string, generation uint64) (string, bool) {
	val, err := c.client.Get(ctx, c.cacheKey(message, generation)).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.Warn("", "decision cache read failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	return val, true
}

// Put stores a routing decision. Failures are logged and ignored.
func (c *DecisionCache) Put(ctx context.Context, message string, generation uint64, agentID string) {
	if err := c.client.Set(ctx, c.cacheKey(message, generation), agentID, c.ttl).Err(); err != nil {
		c.log.Warn("", "decision cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
