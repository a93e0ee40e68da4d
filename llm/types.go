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

// Package llm provides a unified interface and types for language-model
// providers. The routing classifier, the agent simulator and the
// evaluation judge all speak to their models through this package.
package llm

import (
	"fmt"
	"time"
)

// ProviderType identifies the type of LLM provider.
type ProviderType string

// Standard provider types supported out of the box.
const (
	// ProviderTypeOpenAI represents OpenAI (or any OpenAI-compatible
	// chat-completions endpoint, including Azure OpenAI deployments).
	ProviderTypeOpenAI ProviderType = "openai"

	// ProviderTypeAnthropic represents Anthropic's Claude models.
	ProviderTypeAnthropic ProviderType = "anthropic"

	// ProviderTypeBedrock represents AWS Bedrock managed models.
	ProviderTypeBedrock ProviderType = "bedrock"

	// ProviderTypeOllama represents self-hosted Ollama models.
	ProviderTypeOllama ProviderType = "ollama"
)

// CompletionRequest encapsulates the parameters for a completion call.
type CompletionRequest struct {
	// Prompt is the user's input text/question.
	Prompt string `json:"prompt"`

	// SystemPrompt is an optional system message that sets behavior.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// MaxTokens limits the response length. 0 uses provider defaults.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. The routing classifier always
	// passes 0 to bias toward reproducible selections.
	Temperature float64 `json:"temperature"`

	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// StopSequences are strings that cause generation to stop.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// CompletionResponse contains the result of a completion call.
type CompletionResponse struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Model is the actual model used (may differ from requested).
	Model string `json:"model"`

	// Usage contains token usage statistics.
	Usage UsageStats `json:"usage"`

	// Latency is the time taken to generate the response.
	Latency time.Duration `json:"latency"`

	// FinishReason indicates why generation stopped.
	FinishReason string `json:"finish_reason,omitempty"`
}

// UsageStats tracks token usage for monitoring.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// HealthStatus represents the health state of a provider.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheckResult contains health check information for a provider.
type HealthCheckResult struct {
	Status      HealthStatus  `json:"status"`
	Latency     time.Duration `json:"latency"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
}

// ProviderError represents an error from an LLM provider.
type ProviderError struct {
	// Provider is the name of the provider that returned the error.
	Provider string `json:"provider"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// StatusCode is the HTTP status code (if applicable).
	StatusCode int `json:"status_code,omitempty"`

	// Retryable indicates if the request can be retried by an outer
	// layer. Nothing in this repository retries automatically.
	Retryable bool `json:"retryable"`

	// Cause is the underlying error (if any).
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Common error codes.
const (
	ErrCodeRateLimit      = "rate_limit"
	ErrCodeAuth           = "authentication_error"
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeServerError    = "server_error"
	ErrCodeTimeout        = "timeout"
	ErrCodeUnavailable    = "unavailable"
)

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: isRetryableCode(code),
	}
}

// isRetryableCode determines if an error code is retryable.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeTimeout, ErrCodeUnavailable:
		return true
	default:
		return false
	}
}

// codeForStatus maps an HTTP status code from a provider API to an
// error code. Used by the HTTP-based providers.
func codeForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return ErrCodeAuth
	case status == 429:
		return ErrCodeRateLimit
	case status >= 500:
		return ErrCodeServerError
	default:
		return ErrCodeInvalidRequest
	}
}
