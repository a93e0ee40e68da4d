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
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"deskflow/platform/shared/logger"
	"deskflow/platform/trace"
)

// Orchestrator ties the registry, classifier and agent transport
// together. Each request makes at most one classifier call and exactly
// one agent call, under one trace.
type Orchestrator struct {
	registry   *Registry
	classifier *Classifier
	transport  Transport
	tracer     *trace.Tracer
	stats      *statsWindow
	log        *logger.Logger
}

// New assembles an orchestrator. tracer may be trace.NewNop().
func New(registry *Registry, classifier *Classifier, transport Transport, tracer *trace.Tracer, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		classifier: classifier,
		transport:  transport,
		tracer:     tracer,
		stats:      newStatsWindow(),
		log:        log,
	}
}

// Registry exposes the agent registry for admin handlers.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Handle runs one request end to end: validate, resolve an agent
// (explicit or classified), dispatch, and return the envelope. The
// returned error is always a *RequestError.
func (o *Orchestrator) Handle(ctx context.Context, requestID string, req Request) (*AskResponse, *RequestError) {
	start := time.Now()
	mode := "routed"
	if req.ExplicitAgentID != "" {
		mode = "explicit"
	}

	resp, reqErr := o.handle(ctx, requestID, req, mode)

	elapsed := time.Since(start)
	requestDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if reqErr != nil {
		requestsTotal.WithLabelValues(mode, string(reqErr.Kind)).Inc()
		o.stats.recordFailure(reqErr.Kind, elapsed)
		o.log.ErrorWithErr(requestID, "request failed", reqErr, map[string]interface{}{
			"mode": mode,
			"kind": string(reqErr.Kind),
		})
		return nil, reqErr
	}

	requestsTotal.WithLabelValues(mode, "completed").Inc()
	routedTotal.WithLabelValues(resp.RoutedTo).Inc()
	o.stats.recordSuccess(resp.RoutedTo, elapsed)
	o.log.InfoWithDuration(requestID, "request completed", float64(elapsed.Milliseconds()), map[string]interface{}{
		"mode":      mode,
		"routed_to": resp.RoutedTo,
		"trace_id":  resp.TraceID,
	})
	return resp, nil
}

func (o *Orchestrator) handle(ctx context.Context, requestID string, req Request, mode string) (*AskResponse, *RequestError) {
	// The root span opens before validation: every request, valid or
	// not, produces exactly one root trace record.
	root := o.tracer.StartTrace("ask")
	root.SetInput(req.Message)
	root.SetAttribute("mode", mode)
	if req.CallerID != "" {
		root.SetAttribute("caller_id", req.CallerID)
	}
	if req.ProviderHint != "" {
		root.SetAttribute("provider_hint", req.ProviderHint)
	}

	if strings.TrimSpace(req.Message) == "" {
		reqErr := newRequestError(KindInvalidRequest, "message must not be empty")
		root.SetAttribute("error_kind", string(reqErr.Kind))
		root.End(trace.StatusError)
		return nil, reqErr
	}

	// Everything below resolves against this one snapshot; a reload
	// mid-request cannot change the agent set under us.
	snap := o.registry.Snapshot()

	agent, decision, reqErr := o.resolveAgent(ctx, requestID, req, snap, root)
	if reqErr != nil {
		root.SetAttribute("error_kind", string(reqErr.Kind))
		root.End(trace.StatusError)
		return nil, reqErr
	}
	root.SetAttribute("routed_to", agent.ID)

	answer, reqErr := o.dispatch(ctx, agent, req, root)
	if reqErr != nil {
		root.SetAttribute("error_kind", string(reqErr.Kind))
		root.End(trace.StatusError)
		return nil, reqErr
	}

	root.SetOutput(answer.Content)
	root.End(trace.StatusOK)

	return &AskResponse{
		RoutedTo: agent.ID,
		Response: answer.Content,
		TraceID:  root.TraceID(),
		Routing:  decision,
	}, nil
}

// resolveAgent returns the target agent, either by explicit id or via
// the classifier. The decision is nil for explicit routes.
func (o *Orchestrator) resolveAgent(ctx context.Context, requestID string, req Request, snap *Snapshot, root *trace.SpanHandle) (AgentDescriptor, *RoutingDecision, *RequestError) {
	if req.ExplicitAgentID != "" {
		agent, ok := snap.Get(req.ExplicitAgentID)
		if !ok {
			return AgentDescriptor{}, nil, newRequestError(KindUnknownAgent,
				"agent %q is not registered", req.ExplicitAgentID)
		}
		return agent, nil, nil
	}

	if o.classifier == nil {
		return AgentDescriptor{}, nil, newRequestError(KindConfiguration,
			"no routing classifier configured; use an explicit agent route")
	}

	span := o.tracer.StartSpan(root, "route")
	span.SetInput(req.Message)

	decision, err := o.classifier.Classify(ctx, requestID, req.Message, snap)
	if err != nil {
		span.SetAttribute("error", err.Error())
		span.End(trace.StatusError)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AgentDescriptor{}, nil, cancelledError(ctxErr)
		}
		// An empty registry is a deployment problem, not a routing
		// outcome.
		if errors.Is(err, ErrNoCandidates) {
			return AgentDescriptor{}, nil, wrapRequestError(KindConfiguration, err,
				"no agents registered")
		}
		return AgentDescriptor{}, nil, wrapRequestError(KindRoutingUnavailable, err,
			"could not select an agent")
	}

	classifierDuration.Observe(decision.Latency.Seconds())
	span.SetOutput(decision.AgentID)
	span.SetAttribute("model", decision.Model)
	span.End(trace.StatusOK)

	// The classifier validated the id against this same snapshot.
	agent, _ := snap.Get(decision.AgentID)
	return agent, decision, nil
}

// dispatch sends the message to the agent and classifies any failure.
func (o *Orchestrator) dispatch(ctx context.Context, agent AgentDescriptor, req Request, root *trace.SpanHandle) (*AgentResponse, *RequestError) {
	span := o.tracer.StartSpan(root, "agent_call")
	span.SetAttribute("agent_id", agent.ID)
	span.SetInput(req.Message)

	answer, err := o.transport.Send(ctx, agent, req)
	if err != nil {
		span.SetAttribute("error", err.Error())
		span.End(trace.StatusError)

		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, cancelledError(ctx.Err())
		}
		if errors.Is(err, ErrAgentTimeout) {
			return nil, &RequestError{Kind: KindAgentError, Timeout: true,
				Message: "agent " + agent.ID + " timed out", Cause: err}
		}
		var backendErr *BackendError
		if errors.As(err, &backendErr) {
			return nil, wrapRequestError(KindAgentError, err,
				"agent %s failed", agent.ID)
		}
		if errors.Is(err, ErrAgentUnreachable) {
			return nil, wrapRequestError(KindAgentError, err,
				"agent %s is unreachable", agent.ID)
		}
		return nil, wrapRequestError(KindAgentError, err, "agent %s call failed", agent.ID)
	}

	agentCallDuration.WithLabelValues(agent.ID).Observe(answer.Latency.Seconds())
	span.SetOutput(answer.Content)
	span.End(trace.StatusOK)
	return answer, nil
}

func cancelledError(ctxErr error) *RequestError {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return &RequestError{Kind: KindCancelled, Timeout: true,
			Message: "request deadline exceeded", Cause: ctxErr}
	}
	return &RequestError{Kind: KindCancelled,
		Message: "request cancelled by caller", Cause: ctxErr}
}

// HealthProber is implemented by transports that can probe an agent
// backend's availability.
type HealthProber interface {
	Healthy(ctx context.Context, agent AgentDescriptor) bool
}

// HealthReport summarizes service and per-agent health.
type HealthReport struct {
	Status   string            `json:"status"`
	Agents   map[string]string `json:"agents"`
	Registry RegistryStats     `json:"registry"`
}

// Health probes every registered agent concurrently and reports
// per-agent status. Overall status is degraded when any agent is down.
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	snap := o.registry.Snapshot()
	report := HealthReport{
		Status:   "healthy",
		Agents:   make(map[string]string, snap.Len()),
		Registry: o.registry.Stats(),
	}

	prober, ok := o.transport.(HealthProber)
	if !ok {
		for _, agent := range snap.Agents() {
			report.Agents[agent.ID] = "unknown"
		}
		return report
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, agent := range snap.Agents() {
		wg.Add(1)
		go func(agent AgentDescriptor) {
			defer wg.Done()
			status := "healthy"
			if !prober.Healthy(probeCtx, agent) {
				status = "unhealthy"
			}
			mu.Lock()
			report.Agents[agent.ID] = status
			if status != "healthy" {
				report.Status = "degraded"
			}
			mu.Unlock()
		}(agent)
	}
	wg.Wait()

	return report
}

// Metrics returns the JSON metrics report.
func (o *Orchestrator) Metrics() MetricsReport {
	return o.stats.report()
}
