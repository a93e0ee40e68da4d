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

// Package orchestrator routes natural-language requests to specialist
// agents. A registry describes the available agents, a classifier picks
// one per request, and an agent client dispatches the message and
// relays the answer.
package orchestrator

import (
	"encoding/json"
	"time"
)

// Skill names one thing an agent can do.
type Skill struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// AgentDescriptor describes one routable agent: who it is, what it
// handles, and where it lives.
type AgentDescriptor struct {
	// ID is the unique routing key, e.g. "tech-support". Lowercase, so
	// it survives the classifier's output normalization.
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable display name.
	Name string `json:"name" yaml:"name"`

	// Description tells the classifier what this agent handles. Quality
	// here directly determines routing quality.
	Description string `json:"description" yaml:"description"`

	// Endpoint is the base URL of the agent backend.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Skills are shown to the classifier alongside the description.
	// Order is preserved from the manifest.
	Skills []Skill `json:"skills,omitempty" yaml:"skills,omitempty"`

	// Metadata carries operator-defined key/value pairs. Not shown to
	// the classifier.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// AskRequest is the inbound request body for routed and direct asks.
type AskRequest struct {
	Message string `json:"message"`

	// ProviderHint optionally suggests which model backend the agent
	// should use. Forwarded to the agent verbatim.
	ProviderHint string `json:"provider_hint,omitempty"`

	// CallerID optionally identifies the caller for rate limiting and
	// tracing. Falls back to the client IP when empty.
	CallerID string `json:"caller_id,omitempty"`
}

// AskResponse is the envelope returned for a completed request.
type AskResponse struct {
	RoutedTo string `json:"routed_to"`
	Response string `json:"response"`
	TraceID  string `json:"trace_id"`

	// Routing carries classifier detail. Nil for explicit routes.
	Routing *RoutingDecision `json:"routing,omitempty"`
}

// RoutingDecision records how an agent was selected.
type RoutingDecision struct {
	// AgentID is the selected agent.
	AgentID string `json:"agent_id"`

	// Rationale is the classifier's raw selection text, kept for
	// debugging. Empty when the decision came from cache.
	Rationale string `json:"rationale,omitempty"`

	// Model is the model that made the call, or "cache" on a cache hit.
	Model string `json:"model,omitempty"`

	// Latency is the classifier round-trip time.
	Latency time.Duration `json:"-"`
}

// MarshalJSON writes latency in milliseconds; time.Duration would
// otherwise serialize as nanoseconds.
func (d RoutingDecision) MarshalJSON() ([]byte, error) {
	type plain RoutingDecision
	return json.Marshal(struct {
		plain
		LatencyMS int64 `json:"latency_ms"`
	}{plain(d), d.Latency.Milliseconds()})
}

// Request is the internal, already-validated form of an ask.
type Request struct {
	// Message is the non-empty user message.
	Message string

	// ExplicitAgentID skips classification when set.
	ExplicitAgentID string

	// ProviderHint is forwarded to the agent backend.
	ProviderHint string

	// CallerID identifies the caller for tracing and rate limiting.
	CallerID string
}

// AgentResponse is what an agent backend returned for a dispatched
// message. Internal to the transport; never serialized.
type AgentResponse struct {
	Content string
	AgentID string
	Latency time.Duration
}
