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
	"encoding/json"
	"fmt"
	"strings"

	"deskflow/platform/llm"
)

// Verdict is the judge's grading of one answer.
type Verdict struct {
	// Score is 0.0 to 1.0.
	Score float64 `json:"score"`

	// Reasoning explains the score in a sentence or two.
	Reasoning string `json:"reasoning"`
}

// Judge grades answers with an LLM at temperature 0.
type Judge struct {
	provider llm.Provider
}

// NewJudge creates a judge on the given provider.
func NewJudge(provider llm.Provider) *Judge {
	return &Judge{provider: provider}
}

const judgeSystemPrompt = `You are an impartial evaluator grading a helpdesk answer. Respond with a JSON object: {"score": <0.0-1.0>, "reasoning": "<one or two sentences>"}. Score 1.0 means the answer fully addresses the question, 0.0 means it does not address it at all. Respond with ONLY the JSON object.`

// buildJudgePrompt renders the grading prompt for one answer.
func buildJudgePrompt(question, answer string, expectedContains []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\nAnswer:\n%s\n", question, answer)
	if len(expectedContains) > 0 {
		b.WriteString("\nA good answer likely mentions: ")
		b.WriteString(strings.Join(expectedContains, ", "))
		b.WriteString("\n")
	}
	b.WriteString("\nGrade the answer.")
	return b.String()
}

// stripJSONFences removes markdown code fences models wrap JSON in.
func stripJSONFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Grade scores one answer. Exactly one model call; a malformed verdict
// is an error rather than a silent zero.
func (j *Judge) Grade(ctx context.Context, question, answer string, expectedContains []string) (*Verdict, error) {
	resp, err := j.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:       buildJudgePrompt(question, answer, expectedContains),
		SystemPrompt: judgeSystemPrompt,
		Temperature:  0,
		MaxTokens:    300,
	})
	if err != nil {
		return nil, fmt.Errorf("judge call failed: %w", err)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(stripJSONFences(resp.Content)), &verdict); err != nil {
		return nil, fmt.Errorf("judge returned unparseable verdict %q: %w", resp.Content, err)
	}
	if verdict.Score < 0 || verdict.Score > 1 {
		return nil, fmt.Errorf("judge score %v out of range", verdict.Score)
	}
	return &verdict, nil
}
