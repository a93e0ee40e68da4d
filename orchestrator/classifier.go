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
	"errors"
	"fmt"
	"strings"
	"time"

	"deskflow/platform/llm"
	"deskflow/platform/shared/logger"
)

// Classifier failure modes.
var (
	// ErrNoCandidates means the registry snapshot is empty.
	ErrNoCandidates = errors.New("no agents available for routing")

	// ErrClassifierUnavailable means the model call itself failed.
	ErrClassifierUnavailable = errors.New("routing classifier unavailable")

	// ErrInvalidSelection means the model answered with something that
	// is not a known agent id.
	ErrInvalidSelection = errors.New("classifier returned an unknown agent")
)

// Classifier selects an agent for a message using a single LLM call.
// No retries: a bad selection surfaces immediately as
// routing_unavailable rather than burning latency on a second guess.
type Classifier struct {
	provider llm.Provider
	cache    *DecisionCache
	log      *logger.Logger
}

// NewClassifier creates a classifier backed by the given provider.
// cache may be nil to disable decision caching.
func NewClassifier(provider llm.Provider, cache *DecisionCache, log *logger.Logger) *Classifier {
	return &Classifier{provider: provider, cache: cache, log: log}
}

const routingSystemPrompt = `You are a request router. Given a user message and a list of available agents, respond with the id of the single best-suited agent. Respond with ONLY the agent id, nothing else.`

// buildRoutingPrompt renders the candidate list and the user message
// into the classifier prompt.
func buildRoutingPrompt(message string, agents []AgentDescriptor) string {
	var b strings.Builder
	b.WriteString("Available agents:\n")
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s", a.ID)
		if a.Name != "" {
			fmt.Fprintf(&b, " (%s)", a.Name)
		}
		fmt.Fprintf(&b, ": %s", a.Description)
		if len(a.Skills) > 0 {
			names := make([]string, len(a.Skills))
			for i, s := range a.Skills {
				names[i] = s.Name
			}
			fmt.Fprintf(&b, " (skills: %s)", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nUser message:\n")
	b.WriteString(message)
	b.WriteString("\n\nRespond with only the agent id.")
	return b.String()
}

// parseSelection normalizes the model output down to a bare agent id.
// Models wrap answers in fences, quotes and prose often enough that a
// tolerant parse is worth more than a strict one.
func parseSelection(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	// Keep only the first token if the model added commentary.
	if i := strings.IndexAny(s, " \t\n"); i > 0 {
		s = s[:i]
	}
	s = strings.Trim(s, `"'.,:`)
	return strings.ToLower(s)
}

// Classify picks an agent for the message out of the snapshot's agents.
// Exactly one model call is made per invocation; cache hits make none.
func (c *Classifier) Classify(ctx context.Context, requestID, message string, snap *Snapshot) (*RoutingDecision, error) {
	if snap.Len() == 0 {
		return nil, ErrNoCandidates
	}

	if c.cache != nil {
		if agentID, ok := c.cache.Get(ctx, message, snap.Generation()); ok {
			if _, exists := snap.Get(agentID); exists {
				return &RoutingDecision{AgentID: agentID, Model: "cache"}, nil
			}
		}
	}

	start := time.Now()
	resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:       buildRoutingPrompt(message, snap.Agents()),
		SystemPrompt: routingSystemPrompt,
		Temperature:  0,
		MaxTokens:    50,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}

	selected := parseSelection(resp.Content)
	if _, ok := snap.Get(selected); !ok {
		c.log.Warn(requestID, "classifier selected unknown agent", map[string]interface{}{
			"raw_output": resp.Content,
			"parsed":     selected,
		})
		return nil, fmt.Errorf("%w: %q", ErrInvalidSelection, selected)
	}

	decision := &RoutingDecision{
		AgentID:   selected,
		Rationale: strings.TrimSpace(resp.Content),
		Model:     resp.Model,
		Latency:   time.Since(start),
	}

	if c.cache != nil {
		c.cache.Put(ctx, message, snap.Generation(), selected)
	}

	return decision, nil
}
