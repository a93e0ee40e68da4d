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
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// Bedrock defaults.
const (
	BedrockDefaultRegion = "us-east-1"
	BedrockDefaultModel  = "anthropic.claude-3-5-haiku-20241022-v1:0"
)

// BedrockProvider implements Provider for AWS Bedrock using the AWS SDK v2.
// Authentication uses the standard credential chain (IAM roles in-cluster),
// so no API key is configured here.
type BedrockProvider struct {
	name   string
	client *bedrockruntime.Client
	region string
	model  string
}

// NewBedrockProvider creates a Bedrock provider for the given region and
// model. Returns an error if the AWS configuration cannot be loaded.
func NewBedrockProvider(ctx context.Context, region, model string) (*BedrockProvider, error) {
	if region == "" {
		region = BedrockDefaultRegion
	}
	if model == "" {
		model = BedrockDefaultModel
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}

	return &BedrockProvider{
		name:   "bedrock",
		client: bedrockruntime.NewFromConfig(awsCfg),
		region: region,
		model:  model,
	}, nil
}

// Name returns the provider instance name.
func (p *BedrockProvider) Name() string { return p.name }

// Type returns the provider type.
func (p *BedrockProvider) Type() ProviderType { return ProviderTypeBedrock }

// Complete invokes the configured Bedrock model. Only Anthropic-family
// model ids are supported; Bedrock's other families use incompatible
// request schemas and are rejected up front.
func (p *BedrockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}
	if !strings.Contains(model, "anthropic.") {
		return nil, NewProviderError(p.name, ErrCodeInvalidRequest,
			fmt.Sprintf("unsupported model family: %s", model))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	requestBody := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"temperature":       req.Temperature,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.SystemPrompt != "" {
		requestBody["system"] = req.SystemPrompt
	}
	if len(req.StopSequences) > 0 {
		requestBody["stop_sequences"] = req.StopSequences
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Code: ErrCodeUnavailable,
			Message: err.Error(), Retryable: true, Cause: err}
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(output.Body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var content string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &CompletionResponse{
		Content: content,
		Model:   model,
		Usage: UsageStats{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		Latency:      time.Since(start),
		FinishReason: parsed.StopReason,
	}, nil
}

// HealthCheck performs a minimal 1-token invocation.
func (p *BedrockProvider) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
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
