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

package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"deskflow/platform/shared/logger"
)

// HTTPExporter posts span batches to a trace collector as JSON.
type HTTPExporter struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      *logger.Logger
}

// NewHTTPExporter creates an exporter posting to endpoint. apiKey is
// optional and sent as a bearer token when set.
func NewHTTPExporter(endpoint, apiKey string, log *logger.Logger) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		log:      log,
	}
}

type spanBatch struct {
	Spans []Span `json:"spans"`
}

// Export sends one batch. Failures are logged and returned; the tracer
// drops the batch rather than retrying.
func (e *HTTPExporter) Export(ctx context.Context, spans []Span) error {
	body, err := json.Marshal(spanBatch{Spans: spans})
	if err != nil {
		return fmt.Errorf("failed to marshal span batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Warn("", "trace export failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("trace collector returned status %d", resp.StatusCode)
		e.log.Warn("", "trace export rejected", map[string]interface{}{
			"status": resp.StatusCode,
			"spans":  len(spans),
		})
		return err
	}
	return nil
}
