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

package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskflow/platform/llm"
)

type fakeProvider struct {
	content string
	err     error
	lastReq llm.CompletionRequest
}

func (f *fakeProvider) Name() string           { return "fake" }
func (f *fakeProvider) Type() llm.ProviderType { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "fake-model"}, nil
}

func (f *fakeProvider) HealthCheck(context.Context) (*llm.HealthCheckResult, error) {
	return &llm.HealthCheckResult{Status: llm.HealthStatusHealthy}, nil
}

func TestJudgeGrade(t *testing.T) {
	provider := &fakeProvider{content: `{"score": 0.9, "reasoning": "Clear, actionable steps."}`}
	judge := NewJudge(provider)

	verdict, err := judge.Grade(context.Background(), "vpn down", "Restart the client.", []string{"vpn"})
	require.NoError(t, err)

	assert.Equal(t, 0.9, verdict.Score)
	assert.Equal(t, "Clear, actionable steps.", verdict.Reasoning)

	// The judge runs deterministic.
	assert.Equal(t, 0.0, provider.lastReq.Temperature)
	assert.Contains(t, provider.lastReq.Prompt, "vpn down")
	assert.Contains(t, provider.lastReq.Prompt, "likely mentions: vpn")
}

func TestJudgeGradeFencedVerdict(t *testing.T) {
	provider := &fakeProvider{content: "```json\n{\"score\": 0.5, \"reasoning\": \"Partially correct.\"}\n```"}
	judge := NewJudge(provider)

	verdict, err := judge.Grade(context.Background(), "q", "a", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, verdict.Score)
}

func TestJudgeGradeBadVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "the answer is great"},
		{"score out of range", `{"score": 1.5, "reasoning": "x"}`},
		{"negative score", `{"score": -0.1, "reasoning": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := NewJudge(&fakeProvider{content: tt.content})
			_, err := judge.Grade(context.Background(), "q", "a", nil)
			assert.Error(t, err)
		})
	}
}

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"score": 1}`, `{"score": 1}`},
		{"```json\n{\"score\": 1}\n```", `{"score": 1}`},
		{"```\n{\"score\": 1}\n```", `{"score": 1}`},
		{"  {\"score\": 1}  ", `{"score": 1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripJSONFences(tt.raw))
	}
}
