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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Anthropic defaults.
const (
	AnthropicDefaultBaseURL = "https://api.anthropic.com"
	AnthropicDefaultModel   = "claude-3-5-haiku-20241022"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicProvider implements Provider against the Anthropic messages API.
type AnthropicProvider struct {
	name    string
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewAnthropicProvider creates an Anthropic provider from configuration.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewProviderError("anthropic", ErrCodeAuth, "API key is required")
	}
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = AnthropicDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = AnthropicDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &AnthropicProvider{
		name:    cfg.Name,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider instance name.
func (p *AnthropicProvider) Name() string { return p.name }

// Type returns the provider type.
func (p *AnthropicProvider) Type() ProviderType { return ProviderTypeAnthropic }

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature"`
	System        string             `json:"system,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete generates a completion via the messages endpoint.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024 // the messages API requires max_tokens
	}

	body, err := json.Marshal(anthropicRequest{
		Model:         model,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		System:        req.SystemPrompt,
		StopSequences: req.StopSequences,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ProviderError{Provider: p.name, Code: ErrCodeTimeout,
				Message: "request timed out", Retryable: true, Cause: err}
		}
		return nil, &ProviderError{Provider: p.name, Code: ErrCodeUnavailable,
			Message: err.Error(), Retryable: true, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if parsed.Error != nil {
			message = parsed.Error.Message
		}
		code := codeForStatus(resp.StatusCode)
		return nil, &ProviderError{Provider: p.name, Code: code, Message: message,
			StatusCode: resp.StatusCode, Retryable: isRetryableCode(code)}
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &CompletionResponse{
		Content: content,
		Model:   parsed.Model,
		Usage: UsageStats{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		Latency:      time.Since(start),
		FinishReason: parsed.StopReason,
	}, nil
}

// HealthCheck performs a minimal completion to verify authentication.
// The messages API has no cheap unauthenticated probe, so a 1-token
// request is the smallest reliable check.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	start := time.Now()

	_, err := p.Complete(ctx, CompletionRequest{Prompt: "ping", MaxTokens: 1})
	if err != nil {
		return &HealthCheckResult{
			Status:      HealthStatusUnhealthy,
			Latency:     time.Since(start),
			Message:     err.Error(),
			LastChecked: time.Now(),
		}, nil
	}

	return &HealthCheckResult{
		Status:      HealthStatusHealthy,
		Latency:     time.Since(start),
		Message:     "provider is operational",
		LastChecked: time.Now(),
	}, nil
}
