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

package agentsim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"deskflow/platform/llm"
	"deskflow/platform/shared/logger"
)

// Server serves one agent profile over the chat protocol.
type Server struct {
	profile   Profile
	responder Responder
	log       *logger.Logger
}

// NewServer creates a simulator server. provider may be nil, which
// selects canned replies.
func NewServer(profile Profile, provider llm.Provider, log *logger.Logger) *Server {
	var responder Responder
	if provider != nil {
		responder = &llmResponder{provider: provider, profile: profile}
	} else {
		responder = &cannedResponder{profile: profile}
	}
	return &Server{profile: profile, responder: responder, log: log}
}

// card is the agent's self-description served at the well-known path.
type card struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Version     string      `json:"version"`
	Skills      []cardSkill `json:"skills,omitempty"`
}

type cardSkill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type chatRequest struct {
	Message      string `json:"message"`
	ProviderHint string `json:"provider_hint,omitempty"`
}

type chatResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Routes builds the router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/.well-known/agent.json", s.handleCard).Methods(http.MethodGet)
	r.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	skills := make([]cardSkill, 0, len(s.profile.Capabilities))
	for _, name := range s.profile.Capabilities {
		skills = append(skills, cardSkill{Name: name})
	}
	_ = json.NewEncoder(w).Encode(card{
		Name:        s.profile.Name,
		Description: s.profile.Description,
		Version:     Version,
		Skills:      skills,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeChat(w, http.StatusBadRequest, chatResponse{Error: "body must be valid JSON"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeChat(w, http.StatusBadRequest, chatResponse{Error: "message must not be empty"})
		return
	}

	answer, err := s.responder.Respond(r.Context(), req.Message)
	if err != nil {
		s.log.ErrorWithErr("", "responder failed", err, map[string]interface{}{
			"agent": s.profile.ID,
		})
		writeChat(w, http.StatusInternalServerError, chatResponse{Error: "agent backend failed"})
		return
	}

	s.log.InfoWithDuration("", "chat handled", float64(time.Since(start).Milliseconds()), map[string]interface{}{
		"agent": s.profile.ID,
	})
	writeChat(w, http.StatusOK, chatResponse{Response: answer})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "agent": s.profile.ID})
}

func writeChat(w http.ResponseWriter, status int, resp chatResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Run boots a simulator from the environment and blocks until
// SIGINT/SIGTERM.
//
// Environment:
//
//	AGENT_PROFILE  which built-in persona to serve (required)
//	PORT           listen port (default 8080)
//
// plus the LLM_* variables; with no provider configured replies are
// canned.
func Run() error {
	log := logger.New("agentsim")

	profileID := os.Getenv("AGENT_PROFILE")
	if profileID == "" {
		return fmt.Errorf("AGENT_PROFILE is required (one of: %s)", strings.Join(ProfileIDs(), ", "))
	}
	profile, err := ProfileByID(profileID)
	if err != nil {
		return err
	}

	var provider llm.Provider
	if p, err := llm.New(context.Background(), llm.LoadConfigFromEnv()); err == nil {
		provider = p
		log.Info("", "agent using LLM provider", map[string]interface{}{
			"agent":    profile.ID,
			"provider": string(p.Type()),
		})
	} else {
		log.Info("", "no LLM provider configured, using canned replies", map[string]interface{}{
			"agent": profile.ID,
		})
	}

	server := NewServer(profile, provider, log)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "agent listening", map[string]interface{}{"agent": profile.ID, "port": port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
