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
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // postgres driver

	"deskflow/platform/shared/logger"
)

// PGSink stores spans in Postgres for offline analysis and the
// evaluation runner. Implements Exporter, so it plugs into the same
// tracer as the HTTP collector.
type PGSink struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPGSink connects to Postgres and ensures the spans table exists.
func NewPGSink(connStr string, log *logger.Logger) (*PGSink, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping trace database: %w", err)
	}

	sink := &PGSink{db: db, log: log}
	if err := sink.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPGSinkFromDB wraps an existing connection. Used by tests.
func NewPGSinkFromDB(db *sql.DB, log *logger.Logger) *PGSink {
	return &PGSink{db: db, log: log}
}

func (s *PGSink) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trace_spans (
			span_id    TEXT PRIMARY KEY,
			trace_id   TEXT NOT NULL,
			parent_id  TEXT,
			name       TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time   TIMESTAMPTZ NOT NULL,
			input      TEXT,
			output     TEXT,
			status     TEXT NOT NULL,
			attributes JSONB
		);
		CREATE INDEX IF NOT EXISTS trace_spans_trace_id_idx ON trace_spans (trace_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create trace schema: %w", err)
	}
	return nil
}

// Export inserts a batch of spans inside one transaction.
func (s *PGSink) Export(ctx context.Context, spans []Span) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin trace insert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_spans
			(span_id, trace_id, parent_id, name, start_time, end_time, input, output, status, attributes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (span_id) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare trace insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, span := range spans {
		var attrs []byte
		if len(span.Attributes) > 0 {
			attrs, _ = json.Marshal(span.Attributes)
		}
		if _, err := stmt.ExecContext(ctx,
			span.SpanID, span.TraceID, nullable(span.ParentID), span.Name,
			span.StartTime, span.EndTime, nullable(span.Input), nullable(span.Output),
			span.Status, nullableBytes(attrs),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert span %s: %w", span.SpanID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace insert: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *PGSink) Close() error {
	return s.db.Close()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
