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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureExporter struct {
	mu    sync.Mutex
	spans []Span
	calls int
}

func (c *captureExporter) Export(_ context.Context, spans []Span) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, spans...)
	c.calls++
	return nil
}

func (c *captureExporter) all() []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Span, len(c.spans))
	copy(out, c.spans)
	return out
}

func closeTracer(t *testing.T, tracer *Tracer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tracer.Close(ctx))
}

func TestTracerExportsSpans(t *testing.T) {
	exporter := &captureExporter{}
	tracer := New(exporter, Options{FlushInterval: 10 * time.Millisecond})

	root := tracer.StartTrace("ask")
	root.SetInput("hello")
	root.SetAttribute("mode", "routed")

	child := tracer.StartSpan(root, "route")
	child.SetOutput("tech-support")
	child.End(StatusOK)

	root.SetOutput("answer")
	root.End(StatusOK)

	closeTracer(t, tracer)

	spans := exporter.all()
	require.Len(t, spans, 2)

	// Child ended first, so it exports first.
	assert.Equal(t, "route", spans[0].Name)
	assert.Equal(t, "ask", spans[1].Name)
	assert.Equal(t, spans[1].TraceID, spans[0].TraceID)
	assert.Equal(t, spans[1].SpanID, spans[0].ParentID)
	assert.Equal(t, "hello", spans[1].Input)
	assert.Equal(t, "routed", spans[1].Attributes["mode"])
	assert.False(t, spans[1].EndTime.Before(spans[1].StartTime))

	assert.Equal(t, uint64(2), tracer.Exported())
}

func TestSpanEndIsIdempotent(t *testing.T) {
	exporter := &captureExporter{}
	tracer := New(exporter, Options{FlushInterval: 10 * time.Millisecond})

	root := tracer.StartTrace("ask")
	root.End(StatusOK)
	root.End(StatusError)
	root.End(StatusOK)

	closeTracer(t, tracer)

	spans := exporter.all()
	require.Len(t, spans, 1)
	assert.Equal(t, StatusOK, spans[0].Status)
}

func TestTracerDropsWhenFull(t *testing.T) {
	// An exporter that blocks long enough for the queue to fill.
	blocking := make(chan struct{})
	exporter := &blockingExporter{release: blocking}
	tracer := New(exporter, Options{BufferSize: 2, BatchSize: 1, FlushInterval: time.Hour})

	// First span occupies the flusher, next two fill the buffer, the
	// rest must be dropped without blocking this goroutine.
	for i := 0; i < 10; i++ {
		tracer.StartTrace("ask").End(StatusOK)
	}

	assert.Greater(t, tracer.Dropped(), uint64(0))

	close(blocking)
	closeTracer(t, tracer)
}

type blockingExporter struct {
	release chan struct{}
	once    sync.Once
}

func (b *blockingExporter) Export(context.Context, []Span) error {
	b.once.Do(func() { <-b.release })
	return nil
}

func TestTracerBatchesBySize(t *testing.T) {
	exporter := &captureExporter{}
	tracer := New(exporter, Options{BatchSize: 4, FlushInterval: time.Hour})

	for i := 0; i < 8; i++ {
		tracer.StartTrace("ask").End(StatusOK)
	}
	closeTracer(t, tracer)

	require.Len(t, exporter.all(), 8)
	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	assert.Equal(t, 2, exporter.calls)
}

func TestNopTracer(t *testing.T) {
	tracer := NewNop()

	root := tracer.StartTrace("ask")
	assert.NotEmpty(t, root.TraceID())

	child := tracer.StartSpan(root, "route")
	child.End(StatusOK)
	root.End(StatusOK)

	require.NoError(t, tracer.Close(context.Background()))
	assert.Equal(t, uint64(0), tracer.Dropped())
}

func TestTracerCloseRespectsDeadline(t *testing.T) {
	blocking := make(chan struct{})
	defer close(blocking)
	exporter := &blockingExporter{release: blocking}
	tracer := New(exporter, Options{BatchSize: 1, FlushInterval: time.Millisecond})

	tracer.StartTrace("ask").End(StatusOK)
	time.Sleep(20 * time.Millisecond) // let the flusher block in Export

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, tracer.Close(ctx))
}
