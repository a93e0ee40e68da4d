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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"deskflow/platform/shared/logger"
)

// AskResult is the router's envelope for one question.
type AskResult struct {
	RoutedTo string `json:"routed_to"`
	Response string `json:"response"`
	TraceID  string `json:"trace_id"`
}

// RouterClient asks the router one question.
type RouterClient interface {
	Ask(ctx context.Context, question string) (*AskResult, error)
}

// HTTPRouterClient talks to a running orchestrator.
type HTTPRouterClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRouterClient creates a client for the orchestrator at baseURL.
func NewHTTPRouterClient(baseURL string) *HTTPRouterClient {
	return &HTTPRouterClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Ask sends one question through the routed ask endpoint.
func (c *HTTPRouterClient) Ask(ctx context.Context, question string) (*AskResult, error) {
	body, err := json.Marshal(map[string]string{"message": question, "caller_id": "evalrunner"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("router unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("router returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result AskResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("malformed router response: %w", err)
	}
	return &result, nil
}

// ItemResult is the outcome of one evaluation case.
type ItemResult struct {
	ID             string  `json:"id"`
	Question       string  `json:"question"`
	Category       string  `json:"category,omitempty"`
	ExpectedAgent  string  `json:"expected_agent"`
	RoutedTo       string  `json:"routed_to,omitempty"`
	RoutingCorrect bool    `json:"routing_correct"`
	Score          float64 `json:"score"`
	Reasoning      string  `json:"reasoning,omitempty"`
	TraceID        string  `json:"trace_id,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// CategorySummary aggregates results within one category.
type CategorySummary struct {
	Items           int     `json:"items"`
	RoutingAccuracy float64 `json:"routing_accuracy"`
	MeanScore       float64 `json:"mean_score"`
}

// Report is the full evaluation output.
type Report struct {
	Dataset         string                     `json:"dataset"`
	StartedAt       time.Time                  `json:"started_at"`
	DurationSeconds float64                    `json:"duration_seconds"`
	Total           int                        `json:"total"`
	Errors          int                        `json:"errors"`
	RoutingAccuracy float64                    `json:"routing_accuracy"`
	MeanScore       float64                    `json:"mean_score"`
	ByCategory      map[string]CategorySummary `json:"by_category"`
	Items           []ItemResult               `json:"items"`
}

// Runner drives a dataset through the router and the judge.
type Runner struct {
	router RouterClient
	judge  *Judge
	log    *logger.Logger
}

// NewRunner assembles an evaluation runner. judge may be nil to skip
// answer grading and only score routing.
func NewRunner(router RouterClient, judge *Judge, log *logger.Logger) *Runner {
	return &Runner{router: router, judge: judge, log: log}
}

// Run evaluates every item sequentially. Items run one at a time on
// purpose: parallel asks would contend for the same model budgets and
// skew latencies.
func (r *Runner) Run(ctx context.Context, ds *Dataset) *Report {
	started := time.Now()
	report := &Report{
		Dataset:    ds.Name,
		StartedAt:  started,
		Total:      len(ds.Items),
		ByCategory: make(map[string]CategorySummary),
		Items:      make([]ItemResult, 0, len(ds.Items)),
	}

	for _, item := range ds.Items {
		result := r.runItem(ctx, item)
		report.Items = append(report.Items, result)

		if result.Error != "" {
			r.log.Warn("", "evaluation item failed", map[string]interface{}{
				"item":  result.ID,
				"error": result.Error,
			})
		} else {
			r.log.Info("", "evaluation item done", map[string]interface{}{
				"item":            result.ID,
				"routed_to":       result.RoutedTo,
				"routing_correct": result.RoutingCorrect,
				"score":           result.Score,
			})
		}
	}

	summarize(report)
	report.DurationSeconds = time.Since(started).Seconds()
	return report
}

func (r *Runner) runItem(ctx context.Context, item Item) ItemResult {
	result := ItemResult{
		ID:            item.ID,
		Question:      item.Question,
		Category:      item.Category,
		ExpectedAgent: item.ExpectedAgent,
	}

	asked, err := r.router.Ask(ctx, item.Question)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.RoutedTo = asked.RoutedTo
	result.TraceID = asked.TraceID
	result.RoutingCorrect = asked.RoutedTo == item.ExpectedAgent

	if r.judge == nil {
		if result.RoutingCorrect {
			result.Score = 1.0
		}
		return result
	}

	verdict, err := r.judge.Grade(ctx, item.Question, asked.Response, item.ExpectedAnswerContains)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Score = verdict.Score
	result.Reasoning = verdict.Reasoning
	return result
}

func summarize(report *Report) {
	type agg struct {
		items   int
		correct int
		score   float64
		scored  int
	}
	perCat := make(map[string]*agg)
	total := &agg{}

	for _, item := range report.Items {
		cat := item.Category
		if cat == "" {
			cat = "uncategorized"
		}
		if perCat[cat] == nil {
			perCat[cat] = &agg{}
		}
		for _, a := range []*agg{perCat[cat], total} {
			a.items++
			if item.Error != "" {
				continue
			}
			if item.RoutingCorrect {
				a.correct++
			}
			a.score += item.Score
			a.scored++
		}
		if item.Error != "" {
			report.Errors++
		}
	}

	toSummary := func(a *agg) CategorySummary {
		s := CategorySummary{Items: a.items}
		if a.scored > 0 {
			s.RoutingAccuracy = float64(a.correct) / float64(a.scored)
			s.MeanScore = a.score / float64(a.scored)
		}
		return s
	}

	for cat, a := range perCat {
		report.ByCategory[cat] = toSummary(a)
	}
	overall := toSummary(total)
	report.RoutingAccuracy = overall.RoutingAccuracy
	report.MeanScore = overall.MeanScore
}

// WriteReport stores the report as indented JSON.
func WriteReport(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
