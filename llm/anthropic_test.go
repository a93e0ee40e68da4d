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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicComplete(t *testing.T) {
	var gotReq anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_, _ = w.Write([]byte(`{
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "hr"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 90, "output_tokens": 2}
		}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Prompt:      "Who handles payroll questions?",
		Temperature: 0,
	})
	require.NoError(t, err)

	assert.Equal(t, "hr", resp.Content)
	assert.Equal(t, 92, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)

	// max_tokens is mandatory for the messages API, a default must be filled in.
	assert.Equal(t, 1024, gotReq.MaxTokens)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestAnthropicCompleteAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"type": "authentication_error", "message": "invalid x-api-key"}}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "bad-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = provider.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.Error(t, err)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, ErrCodeAuth, provErr.Code)
	assert.False(t, provErr.Retryable)
	assert.Contains(t, provErr.Message, "invalid x-api-key")
}

func TestAnthropicMultipleTextBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"model": "claude-3-5-haiku-20241022",
			"content": [
				{"type": "text", "text": "knowledge"},
				{"type": "text", "text": "-base"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := provider.Complete(context.Background(), CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "knowledge-base", resp.Content)
}
