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
	"fmt"
	"os"
)

// Config holds provider credentials and endpoints, normally loaded from
// the environment at process start.
type Config struct {
	// Provider selects which provider to construct. Empty means "pick
	// the first configured one" in the order openai, anthropic,
	// bedrock, ollama.
	Provider ProviderType

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	AnthropicKey   string
	AnthropicModel string

	BedrockRegion string
	BedrockModel  string

	OllamaEndpoint string
	OllamaModel    string
}

// LoadConfigFromEnv reads provider configuration from environment
// variables. LLM_PROVIDER forces a specific provider type.
func LoadConfigFromEnv() Config {
	return Config{
		Provider:       ProviderType(os.Getenv("LLM_PROVIDER")),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: os.Getenv("ANTHROPIC_MODEL"),
		BedrockRegion:  os.Getenv("BEDROCK_REGION"),
		BedrockModel:   os.Getenv("BEDROCK_MODEL"),
		OllamaEndpoint: os.Getenv("OLLAMA_ENDPOINT"),
		OllamaModel:    os.Getenv("OLLAMA_MODEL"),
	}
}

// New constructs a Provider from configuration. When cfg.Provider is
// empty the first configured provider wins; an error is returned when
// nothing is configured so callers never silently run without a model.
func New(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Provider == "" {
		switch {
		case cfg.OpenAIKey != "":
			cfg.Provider = ProviderTypeOpenAI
		case cfg.AnthropicKey != "":
			cfg.Provider = ProviderTypeAnthropic
		case cfg.BedrockRegion != "":
			cfg.Provider = ProviderTypeBedrock
		case cfg.OllamaEndpoint != "":
			cfg.Provider = ProviderTypeOllama
		default:
			return nil, fmt.Errorf("no LLM provider configured: set OPENAI_API_KEY, ANTHROPIC_API_KEY, BEDROCK_REGION or OLLAMA_ENDPOINT")
		}
	}

	switch cfg.Provider {
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey: cfg.AnthropicKey,
			Model:  cfg.AnthropicModel,
		})
	case ProviderTypeBedrock:
		return NewBedrockProvider(ctx, cfg.BedrockRegion, cfg.BedrockModel)
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.OllamaEndpoint, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider type: %s", cfg.Provider)
	}
}
