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

// Ollama defaults.
const (
	OllamaDefaultEndpoint = "http://ollama:11434"
	OllamaDefaultModel    = "llama3.1:8b"
)

// OllamaProvider implements Provider against a self-hosted Ollama server.
type OllamaProvider struct {
	name     string
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(endpoint, model string) *OllamaProvider {
	if endpoint == "" {
		endpoint = OllamaDefaultEndpoint
	}
	if model == "" {
		model = OllamaDefaultModel
	}
	return &OllamaProvider{
		name:     "ollama",
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Name returns the provider instance name.
func (p *OllamaProvider) Name() string { return p.name }

// Type returns the provider type.
func (p *OllamaProvider) Type() ProviderType { return ProviderTypeOllama }

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Complete generates a completion via the generate endpoint.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		options["stop"] = req.StopSequences
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   model,
		Prompt:  req.Prompt,
		System:  req.SystemPrompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != "" {
		message := parsed.Error
		if message == "" {
			message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		code := codeForStatus(resp.StatusCode)
		return nil, &ProviderError{Provider: p.name, Code: code, Message: message,
			StatusCode: resp.StatusCode, Retryable: isRetryableCode(code)}
	}

	return &CompletionResponse{
		Content: parsed.Response,
		Model:   parsed.Model,
		Usage: UsageStats{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
		Latency:      time.Since(start),
		FinishReason: parsed.DoneReason,
	}, nil
}

// HealthCheck verifies the Ollama server responds.
func (p *OllamaProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &HealthCheckResult{
			Status:      HealthStatusUnhealthy,
			Latency:     time.Since(start),
			Message:     err.Error(),
			LastChecked: time.Now(),
		}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	status := HealthStatusHealthy
	message := "provider is operational"
	if resp.StatusCode != http.StatusOK {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("tags endpoint returned status %d", resp.StatusCode)
	}

	return &HealthCheckResult{
		Status:      status,
		Latency:     time.Since(start),
		Message:     message,
		LastChecked: time.Now(),
	}, nil
}
