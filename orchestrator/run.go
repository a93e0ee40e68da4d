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
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/cors"

	"deskflow/platform/llm"
	"deskflow/platform/shared/logger"
	"deskflow/platform/trace"
)

// Run boots the orchestrator service from the environment and blocks
// until SIGINT/SIGTERM.
//
// Environment:
//
//	PORT                 listen port (default 8080)
//	AGENT_REGISTRY_PATH  path to the AgentRegistry manifest (default configs/agents.yaml)
//	REDIS_URL            enables the shared rate limiter and decision cache
//	RATE_LIMIT           requests per minute per caller (default 60, 0 disables)
//	ADMIN_JWT_SECRET     enables auth on /admin endpoints
//	TRACE_COLLECTOR_URL  HTTP trace collector endpoint
//	TRACE_COLLECTOR_KEY  bearer token for the collector
//	TRACE_DATABASE_URL   postgres DSN for the trace sink (used when no collector URL)
//	AGENT_TIMEOUT        agent call timeout, e.g. "60s"
//
// plus the LLM_* / provider variables read by llm.LoadConfigFromEnv.
func Run() error {
	log := logger.New("orchestrator")
	ctx := context.Background()

	registryPath := envDefault("AGENT_REGISTRY_PATH", "configs/agents.yaml")
	registry, err := NewRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load agent registry: %w", err)
	}
	log.Info("", "agent registry loaded", map[string]interface{}{
		"path":   registryPath,
		"agents": registry.Snapshot().Len(),
	})

	provider, err := llm.New(ctx, llm.LoadConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}
	log.Info("", "classifier provider ready", map[string]interface{}{
		"provider": string(provider.Type()),
	})

	var redisClient redis.UniversalClient
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Keep going; both consumers of Redis degrade gracefully.
			log.Warn("", "redis unreachable at startup", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	var cache *DecisionCache
	if redisClient != nil {
		cache = NewDecisionCache(redisClient, time.Hour, log)
	}
	classifier := NewClassifier(provider, cache, log)

	var limiter RateLimiter
	rateLimit := envInt("RATE_LIMIT", 60)
	switch {
	case rateLimit <= 0:
		limiter = nil
	case redisClient != nil:
		limiter = NewRedisRateLimiter(redisClient, rateLimit, time.Minute, log)
	default:
		limiter = NewMemoryRateLimiter(rateLimit, time.Minute)
	}

	tracer, traceCleanup, err := buildTracer(log)
	if err != nil {
		return err
	}

	agentTimeout := 60 * time.Second
	if raw := os.Getenv("AGENT_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			agentTimeout = d
		}
	}
	transport := NewHTTPTransport(agentTimeout)

	orch := New(registry, classifier, transport, tracer, log)
	server := NewServer(orch, ServerConfig{
		RateLimiter: limiter,
		AdminSecret: os.Getenv("ADMIN_JWT_SECRET"),
	}, log)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(server.Routes())

	port := envDefault("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "orchestrator listening", map[string]interface{}{"port": port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("", "shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.ErrorWithErr("", "http shutdown failed", err, nil)
	}
	if err := tracer.Close(shutdownCtx); err != nil {
		log.Warn("", "tracer close timed out", map[string]interface{}{
			"dropped": tracer.Dropped(),
		})
	}
	traceCleanup()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	return nil
}

// buildTracer picks a trace backend: HTTP collector first, Postgres
// sink second, no-op otherwise.
func buildTracer(log *logger.Logger) (*trace.Tracer, func(), error) {
	if collectorURL := os.Getenv("TRACE_COLLECTOR_URL"); collectorURL != "" {
		exporter := trace.NewHTTPExporter(collectorURL, os.Getenv("TRACE_COLLECTOR_KEY"), log)
		return trace.New(exporter, trace.Options{}), func() {}, nil
	}
	if dsn := os.Getenv("TRACE_DATABASE_URL"); dsn != "" {
		sink, err := trace.NewPGSink(dsn, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace sink: %w", err)
		}
		return trace.New(sink, trace.Options{}), func() { _ = sink.Close() }, nil
	}
	log.Info("", "tracing disabled, no collector configured", nil)
	return trace.NewNop(), func() {}, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
