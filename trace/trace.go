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

// Package trace emits request traces without ever blocking request
// handling. Spans are buffered on a bounded channel and flushed in
// batches by a background goroutine; when the buffer is full spans are
// dropped and counted rather than applying backpressure.
package trace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Span statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Span is one timed operation within a trace.
type Span struct {
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	ParentID   string            `json:"parent_id,omitempty"`
	Name       string            `json:"name"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Input      string            `json:"input,omitempty"`
	Output     string            `json:"output,omitempty"`
	Status     string            `json:"status"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Exporter delivers finished spans to a collector backend.
type Exporter interface {
	Export(ctx context.Context, spans []Span) error
}

// Options tunes the tracer's buffering behavior.
type Options struct {
	// BufferSize is the span queue capacity. Default 1024.
	BufferSize int

	// BatchSize is the max spans per export call. Default 64.
	BatchSize int

	// FlushInterval flushes partial batches this often. Default 2s.
	FlushInterval time.Duration
}

// Tracer buffers spans and exports them in the background.
type Tracer struct {
	exporter      Exporter
	queue         chan Span
	batchSize     int
	flushInterval time.Duration

	dropped  atomic.Uint64
	exported atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a tracer flushing to the given exporter. A nil exporter
// yields a no-op tracer.
func New(exporter Exporter, opts Options) *Tracer {
	if exporter == nil {
		return NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}

	t := &Tracer{
		exporter:      exporter,
		queue:         make(chan Span, opts.BufferSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		done:          make(chan struct{}),
	}
	t.wg.Add(1)
	go t.flushLoop()
	return t
}

// NewNop returns a tracer that records nothing. Handles from it still
// carry trace ids so responses always have one.
func NewNop() *Tracer {
	return &Tracer{}
}

// StartTrace opens a root span with a fresh trace id.
func (t *Tracer) StartTrace(name string) *SpanHandle {
	traceID := uuid.NewString()
	return &SpanHandle{
		tracer: t,
		span: Span{
			TraceID:   traceID,
			SpanID:    uuid.NewString(),
			Name:      name,
			StartTime: time.Now(),
		},
	}
}

// StartSpan opens a child span under parent.
func (t *Tracer) StartSpan(parent *SpanHandle, name string) *SpanHandle {
	return &SpanHandle{
		tracer: t,
		span: Span{
			TraceID:   parent.span.TraceID,
			SpanID:    uuid.NewString(),
			ParentID:  parent.span.SpanID,
			Name:      name,
			StartTime: time.Now(),
		},
	}
}

// enqueue hands a finished span to the flusher, dropping on overflow.
func (t *Tracer) enqueue(s Span) {
	if t.exporter == nil {
		return
	}
	select {
	case t.queue <- s:
	default:
		t.dropped.Add(1)
	}
}

// Dropped returns the count of spans discarded due to a full buffer.
func (t *Tracer) Dropped() uint64 { return t.dropped.Load() }

// Exported returns the count of spans successfully handed to the
// exporter.
func (t *Tracer) Exported() uint64 { return t.exported.Load() }

func (t *Tracer) flushLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	batch := make([]Span, 0, t.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := t.exporter.Export(ctx, batch); err == nil {
			t.exported.Add(uint64(len(batch)))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case s := <-t.queue:
			batch = append(batch, s)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-t.done:
			// Drain whatever is already queued, then stop.
			for {
				select {
				case s := <-t.queue:
					batch = append(batch, s)
					if len(batch) >= t.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes buffered spans and stops the flusher. Waits at most
// until ctx expires. Safe to call more than once.
func (t *Tracer) Close(ctx context.Context) error {
	if t.exporter == nil {
		return nil
	}
	t.closeOnce.Do(func() { close(t.done) })

	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SpanHandle is a live span. End may be called multiple times; only the
// first has effect.
type SpanHandle struct {
	tracer *Tracer
	mu     sync.Mutex
	span   Span
	ended  bool
}

// TraceID returns the trace id shared by this span's trace.
func (h *SpanHandle) TraceID() string { return h.span.TraceID }

// SetInput records the operation's input payload.
func (h *SpanHandle) SetInput(input string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.span.Input = input
}

// SetOutput records the operation's output payload.
func (h *SpanHandle) SetOutput(output string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.span.Output = output
}

// SetAttribute records a key/value attribute on the span.
func (h *SpanHandle) SetAttribute(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.span.Attributes == nil {
		h.span.Attributes = make(map[string]string)
	}
	h.span.Attributes[key] = value
}

// End finishes the span with the given status and enqueues it for
// export.
func (h *SpanHandle) End(status string) {
	h.mu.Lock()
	if h.ended {
		h.mu.Unlock()
		return
	}
	h.ended = true
	h.span.EndTime = time.Now()
	h.span.Status = status
	s := h.span
	h.mu.Unlock()

	h.tracer.enqueue(s)
}
