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
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskflow/platform/shared/logger"
	"deskflow/platform/trace"
)

func newTestServer(t *testing.T, provider *fakeProvider, transport *fakeTransport, cfg ServerConfig) *Server {
	t.Helper()
	log := logger.New("test")
	orch := New(testRegistry(), NewClassifier(provider, nil, log), transport, trace.NewNop(), log)
	return NewServer(orch, cfg, log)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAskEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeProvider{content: "tech-support"},
		&fakeTransport{response: "Restart the VPN client."}, ServerConfig{})
	router := s.Routes()

	rec := doJSON(t, router, http.MethodPost, "/ask", `{"message": "my vpn is down"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tech-support", resp.RoutedTo)
	assert.Equal(t, "Restart the VPN client.", resp.Response)
	assert.NotEmpty(t, resp.TraceID)
}

func TestAskEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		provider   *fakeProvider
		transport  *fakeTransport
		body       string
		wantStatus int
		wantKind   string
	}{
		{
			name:       "empty message",
			provider:   &fakeProvider{content: "hr"},
			transport:  &fakeTransport{response: "x"},
			body:       `{"message": ""}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "invalid_request",
		},
		{
			name:       "bad json",
			provider:   &fakeProvider{content: "hr"},
			transport:  &fakeTransport{response: "x"},
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "invalid_request",
		},
		{
			name:       "classifier down",
			provider:   &fakeProvider{err: assert.AnError},
			transport:  &fakeTransport{response: "x"},
			body:       `{"message": "hello"}`,
			wantStatus: http.StatusBadGateway,
			wantKind:   "routing_unavailable",
		},
		{
			name:       "agent backend failure",
			provider:   &fakeProvider{content: "hr"},
			transport:  &fakeTransport{err: &BackendError{AgentID: "hr", Status: 500, Message: "boom"}},
			body:       `{"message": "hello"}`,
			wantStatus: http.StatusBadGateway,
			wantKind:   "agent_error",
		},
		{
			name:       "agent timeout",
			provider:   &fakeProvider{content: "hr"},
			transport:  &fakeTransport{err: ErrAgentTimeout},
			body:       `{"message": "hello"}`,
			wantStatus: http.StatusGatewayTimeout,
			wantKind:   "agent_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.provider, tt.transport, ServerConfig{})
			rec := doJSON(t, s.Routes(), http.MethodPost, "/ask", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantKind, body.Error.Kind)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestAskExplicitAgentEndpoint(t *testing.T) {
	provider := &fakeProvider{content: "tech-support"}
	transport := &fakeTransport{response: "12 days left."}
	s := newTestServer(t, provider, transport, ServerConfig{})
	router := s.Routes()

	rec := doJSON(t, router, http.MethodPost, "/ask/hr", `{"message": "leave balance?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hr", resp.RoutedTo)
	assert.Equal(t, 0, provider.calls)

	rec = doJSON(t, router, http.MethodPost, "/ask/billing", `{"message": "hello"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeProvider{content: "hr"}, &fakeTransport{response: "x"}, ServerConfig{})

	rec := doJSON(t, s.Routes(), http.MethodGet, "/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp agentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Agents, 2)
	// Declaration order is preserved.
	assert.Equal(t, "tech-support", resp.Agents[0].ID)
	assert.Equal(t, "hr", resp.Agents[1].ID)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeProvider{content: "hr"}, &fakeTransport{response: "x"}, ServerConfig{})

	rec := doJSON(t, s.Routes(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "healthy", report.Status)
}

func TestMetricsEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeProvider{content: "tech-support"},
		&fakeTransport{response: "ok"}, ServerConfig{})
	router := s.Routes()

	doJSON(t, router, http.MethodPost, "/ask", `{"message": "hello"}`)

	rec := doJSON(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report MetricsReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.GreaterOrEqual(t, report.TotalRequests, uint64(1))

	rec = doJSON(t, router, http.MethodGet, "/prometheus", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deskflow_orchestrator_requests_total")
}

func TestRateLimitedAsk(t *testing.T) {
	s := newTestServer(t, &fakeProvider{content: "tech-support"},
		&fakeTransport{response: "ok"}, ServerConfig{
			RateLimiter: NewMemoryRateLimiter(1, time.Minute),
		})
	router := s.Routes()

	rec := doJSON(t, router, http.MethodPost, "/ask", `{"message": "one", "caller_id": "alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/ask", `{"message": "two", "caller_id": "alice"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error.Kind)

	// A different caller has its own budget.
	rec = doJSON(t, router, http.MethodPost, "/ask", `{"message": "three", "caller_id": "bob"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminReloadAuth(t *testing.T) {
	log := logger.New("test")
	path := writeManifest(t, validManifest)
	registry, err := NewRegistry(path)
	require.NoError(t, err)

	orch := New(registry, NewClassifier(&fakeProvider{content: "hr"}, nil, log),
		&fakeTransport{response: "x"}, trace.NewNop(), log)
	s := NewServer(orch, ServerConfig{AdminSecret: "test-secret"}, log)
	router := s.Routes()

	// No token.
	rec := doJSON(t, router, http.MethodPost, "/admin/reload", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong secret.
	req := httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "wrong-secret"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token.
	req = httptest.NewRequest(http.MethodPost, "/admin/reload", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "test-secret"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Agents)
	assert.Equal(t, uint64(2), resp.Generation)
}

func TestAdminReloadRejectsBadManifest(t *testing.T) {
	log := logger.New("test")
	path := writeManifest(t, validManifest)
	registry, err := NewRegistry(path)
	require.NoError(t, err)

	orch := New(registry, NewClassifier(&fakeProvider{content: "hr"}, nil, log),
		&fakeTransport{response: "x"}, trace.NewNop(), log)
	s := NewServer(orch, ServerConfig{}, log)

	require.NoError(t, os.WriteFile(path, []byte("kind: Broken\n"), 0o644))
	rec := doJSON(t, s.Routes(), http.MethodPost, "/admin/reload", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// The previous snapshot is still serving.
	rec = doJSON(t, s.Routes(), http.MethodGet, "/agents", "")
	var resp agentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Agents, 2)
}
