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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Agent transport failure modes.
var (
	// ErrAgentTimeout means the agent did not answer before the
	// deadline.
	ErrAgentTimeout = errors.New("agent call timed out")

	// ErrAgentUnreachable means the connection could not be
	// established.
	ErrAgentUnreachable = errors.New("agent unreachable")
)

// BackendError means the agent was reached but answered with a
// non-success status.
type BackendError struct {
	AgentID string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("agent %s returned status %d: %s", e.AgentID, e.Status, e.Message)
}

// Transport dispatches a message to one agent backend. Agents that
// speak other protocols get their own implementation; the HTTP one is
// the only family in production today. Tests substitute their own.
type Transport interface {
	Send(ctx context.Context, agent AgentDescriptor, req Request) (*AgentResponse, error)
}

// AgentCard is the self-description an agent serves at its well-known
// path, following the A2A agent-card convention.
type AgentCard struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Version     string  `json:"version,omitempty"`
	Skills      []Skill `json:"skills,omitempty"`
}

// HTTPTransport speaks the agent chat protocol over HTTP: POST
// {endpoint}/chat with a JSON message, JSON answer back.
type HTTPTransport struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPTransport creates the standard agent transport. timeout <= 0
// defaults to 60s, sized for LLM-backed agents that think before
// answering.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout: timeout,
	}
}

type agentChatRequest struct {
	Message      string `json:"message"`
	ProviderHint string `json:"provider_hint,omitempty"`
}

type agentChatResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Send dispatches the message to the agent's chat endpoint.
func (t *HTTPTransport) Send(ctx context.Context, agent AgentDescriptor, req Request) (*AgentResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	body, err := json.Marshal(agentChatRequest{Message: req.Message, ProviderHint: req.ProviderHint})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		agent.Endpoint+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := string(respBody)
		var parsed agentChatResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error != "" {
			message = parsed.Error
		}
		return nil, &BackendError{AgentID: agent.ID, Status: resp.StatusCode, Message: message}
	}

	var parsed agentChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &BackendError{AgentID: agent.ID, Status: resp.StatusCode,
			Message: "malformed response body"}
	}

	return &AgentResponse{
		Content: parsed.Response,
		AgentID: agent.ID,
		Latency: time.Since(start),
	}, nil
}

// FetchCard retrieves the agent's self-description from its well-known
// path. Used by health checks and the agents listing.
func (t *HTTPTransport) FetchCard(ctx context.Context, agent AgentDescriptor) (*AgentCard, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		agent.Endpoint+"/.well-known/agent.json", nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{AgentID: agent.ID, Status: resp.StatusCode,
			Message: "agent card not available"}
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	return &card, nil
}

// Healthy reports whether the agent backend answers its card endpoint.
func (t *HTTPTransport) Healthy(ctx context.Context, agent AgentDescriptor) bool {
	_, err := t.FetchCard(ctx, agent)
	return err == nil
}

// classifyTransportError maps a raw transport error to one of the
// sentinel errors.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrAgentTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrAgentTimeout, err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrAgentUnreachable, err)
}
