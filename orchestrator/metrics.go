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

package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskflow_orchestrator_requests_total",
			Help: "Total requests by route mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deskflow_orchestrator_request_duration_seconds",
			Help:    "End-to-end request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)

	classifierDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deskflow_orchestrator_classifier_duration_seconds",
			Help:    "Routing classifier latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	agentCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deskflow_orchestrator_agent_call_duration_seconds",
			Help:    "Agent dispatch latency by agent",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	routedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskflow_orchestrator_routed_total",
			Help: "Completed requests by destination agent",
		},
		[]string{"agent"},
	)

	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deskflow_orchestrator_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(classifierDuration)
	prometheus.MustRegister(agentCallDuration)
	prometheus.MustRegister(routedTotal)
	prometheus.MustRegister(rateLimitedTotal)
}

// statsWindow keeps a bounded sample of recent request latencies plus
// running counters, backing the JSON metrics endpoint. Prometheus has
// the full histograms; this exists for humans hitting /metrics with
// curl.
type statsWindow struct {
	mu        sync.Mutex
	samples   []float64 // latency in ms, ring buffer
	next      int
	filled    bool
	total     uint64
	failed    uint64
	perAgent  map[string]uint64
	perErrors map[ErrorKind]uint64
	started   time.Time
}

const statsWindowSize = 512

func newStatsWindow() *statsWindow {
	return &statsWindow{
		samples:   make([]float64, statsWindowSize),
		perAgent:  make(map[string]uint64),
		perErrors: make(map[ErrorKind]uint64),
		started:   time.Now(),
	}
}

func (s *statsWindow) recordSuccess(agentID string, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.perAgent[agentID]++
	s.push(float64(latency.Milliseconds()))
}

func (s *statsWindow) recordFailure(kind ErrorKind, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.failed++
	s.perErrors[kind]++
	s.push(float64(latency.Milliseconds()))
}

func (s *statsWindow) push(ms float64) {
	s.samples[s.next] = ms
	s.next++
	if s.next == len(s.samples) {
		s.next = 0
		s.filled = true
	}
}

// MetricsReport is the JSON metrics payload.
type MetricsReport struct {
	UptimeSeconds   float64           `json:"uptime_seconds"`
	TotalRequests   uint64            `json:"total_requests"`
	FailedRequests  uint64            `json:"failed_requests"`
	RequestsByAgent map[string]uint64 `json:"requests_by_agent"`
	ErrorsByKind    map[string]uint64 `json:"errors_by_kind"`
	LatencyMS       LatencySummary    `json:"latency_ms"`
}

// LatencySummary holds latency percentiles over the recent window.
type LatencySummary struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

func (s *statsWindow) report() MetricsReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.filled {
		n = len(s.samples)
	}
	sorted := make([]float64, n)
	copy(sorted, s.samples[:n])
	sort.Float64s(sorted)

	byAgent := make(map[string]uint64, len(s.perAgent))
	for k, v := range s.perAgent {
		byAgent[k] = v
	}
	byKind := make(map[string]uint64, len(s.perErrors))
	for k, v := range s.perErrors {
		byKind[string(k)] = v
	}

	return MetricsReport{
		UptimeSeconds:   time.Since(s.started).Seconds(),
		TotalRequests:   s.total,
		FailedRequests:  s.failed,
		RequestsByAgent: byAgent,
		ErrorsByKind:    byKind,
		LatencyMS: LatencySummary{
			P50: percentile(sorted, 0.50),
			P95: percentile(sorted, 0.95),
			P99: percentile(sorted, 0.99),
		},
	}
}

// percentile expects sorted input; nearest-rank method.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
