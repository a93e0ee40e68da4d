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
	"encoding/json"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deskflow/platform/shared/logger"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch    *Orchestrator
	limiter RateLimiter
	auth    *adminAuth
	log     *logger.Logger
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// RateLimiter guards the ask endpoints. Nil disables limiting.
	RateLimiter RateLimiter

	// AdminSecret enables JWT auth on admin endpoints when non-empty.
	AdminSecret string
}

// NewServer creates the HTTP server around an orchestrator.
func NewServer(orch *Orchestrator, cfg ServerConfig, log *logger.Logger) *Server {
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = noopRateLimiter{}
	}
	return &Server{
		orch:    orch,
		limiter: limiter,
		auth:    newAdminAuth(cfg.AdminSecret),
		log:     log,
	}
}

// Routes builds the router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ask", s.handleAsk).Methods(http.MethodPost)
	r.HandleFunc("/ask/{agentId}", s.handleAskAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents", s.handleAgents).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.Handle("/prometheus", promhttp.Handler()).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.auth.middleware)
	admin.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)

	return r
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, reqErr *RequestError) {
	var body errorBody
	body.Error.Kind = string(reqErr.Kind)
	body.Error.Message = reqErr.Message
	writeJSON(w, reqErr.HTTPStatus(), body)
}

// decodeAsk parses and validates the request body common to both ask
// endpoints. Returns the caller id resolved from the body or the
// client address.
func decodeAsk(r *http.Request) (AskRequest, string, *RequestError) {
	var body AskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return AskRequest{}, "", wrapRequestError(KindInvalidRequest, err, "request body must be valid JSON")
	}

	callerID := body.CallerID
	if callerID == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		callerID = host
	}
	return body, callerID, nil
}

func (s *Server) serveAsk(w http.ResponseWriter, r *http.Request, explicitAgentID string) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)

	body, callerID, reqErr := decodeAsk(r)
	if reqErr != nil {
		writeError(w, reqErr)
		return
	}

	if !s.limiter.Allow(r.Context(), callerID) {
		writeError(w, newRequestError(KindRateLimited, "request budget exceeded, retry later"))
		return
	}

	resp, reqErr := s.orch.Handle(r.Context(), requestID, Request{
		Message:         body.Message,
		ExplicitAgentID: explicitAgentID,
		ProviderHint:    body.ProviderHint,
		CallerID:        callerID,
	})
	if reqErr != nil {
		writeError(w, reqErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAsk routes a message via the classifier.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.serveAsk(w, r, "")
}

// handleAskAgent bypasses the classifier and targets one agent.
func (s *Server) handleAskAgent(w http.ResponseWriter, r *http.Request) {
	s.serveAsk(w, r, mux.Vars(r)["agentId"])
}

type agentsResponse struct {
	Agents []AgentDescriptor `json:"agents"`
}

// handleAgents lists the current registry snapshot.
func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	snap := s.orch.Registry().Snapshot()
	writeJSON(w, http.StatusOK, agentsResponse{Agents: snap.Agents()})
}

// handleHealth reports service and per-agent health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.orch.Health(r.Context())
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleMetrics returns the human-oriented JSON metrics. Prometheus
// scrapes /prometheus instead.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Metrics())
}

type reloadResponse struct {
	Agents     int    `json:"agents"`
	Generation uint64 `json:"generation"`
}

// handleReload re-reads the registry manifest. On a bad manifest the
// previous snapshot stays live and the error is returned.
func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.orch.Registry().Reload()
	if err != nil {
		s.log.ErrorWithErr("", "registry reload failed", err, nil)
		writeError(w, wrapRequestError(KindConfiguration, err, "registry reload rejected"))
		return
	}
	s.log.Info("", "registry reloaded", map[string]interface{}{
		"agents":     snap.Len(),
		"generation": snap.Generation(),
	})
	writeJSON(w, http.StatusOK, reloadResponse{Agents: snap.Len(), Generation: snap.Generation()})
}
