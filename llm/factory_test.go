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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExplicitProvider(t *testing.T) {
	provider, err := New(context.Background(), Config{
		Provider:  ProviderTypeOpenAI,
		OpenAIKey: "test-key",
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeOpenAI, provider.Type())
}

func TestNewAutoPicksFirstConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want ProviderType
	}{
		{
			name: "openai wins over anthropic",
			cfg:  Config{OpenAIKey: "a", AnthropicKey: "b"},
			want: ProviderTypeOpenAI,
		},
		{
			name: "anthropic when no openai key",
			cfg:  Config{AnthropicKey: "b"},
			want: ProviderTypeAnthropic,
		},
		{
			name: "ollama as last resort",
			cfg:  Config{OllamaEndpoint: "http://localhost:11434"},
			want: ProviderTypeOllama,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := New(context.Background(), tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, provider.Type())
		})
	}
}

func TestNewNothingConfigured(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM provider configured")
}

func TestNewUnknownProviderType(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "watson"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown LLM provider type")
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022")

	cfg := LoadConfigFromEnv()
	assert.Equal(t, ProviderTypeAnthropic, cfg.Provider)
	assert.Equal(t, "sk-test", cfg.AnthropicKey)
	assert.Equal(t, "claude-3-5-haiku-20241022", cfg.AnthropicModel)
}
