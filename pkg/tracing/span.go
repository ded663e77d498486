// Package tracing provides lightweight request spans logged through slog.
// A span times one operation; child spans attach to the parent carried in
// the context, and ending the root logs the whole tree.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

var spanKey contextKey

// Span is one timed operation within a trace.
type Span struct {
	name    string
	traceID string
	started time.Time
	elapsed time.Duration

	mu       sync.Mutex
	attrs    map[string]any
	children []*Span
}

// StartSpan opens a root span and returns a context carrying it.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{
		name:    name,
		traceID: traceID,
		started: time.Now(),
		attrs:   make(map[string]any),
	}
	return context.WithValue(ctx, spanKey, s), s
}

// StartChildSpan opens a span under the one carried in ctx. Without a parent
// in ctx the child behaves like a root with an empty trace id.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{
		name:    name,
		started: time.Now(),
		attrs:   make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		child.traceID = parent.traceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

// FromContext returns the span carried in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey).(*Span)
	return s
}

// SetAttr records a key/value pair on the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// End freezes the span's duration. Ending twice keeps the first duration.
func (s *Span) End() {
	s.mu.Lock()
	if s.elapsed == 0 {
		s.elapsed = time.Since(s.started)
	}
	s.mu.Unlock()
}

// Log emits the span and its children as structured log lines, one per span.
func (s *Span) Log() {
	s.emit(0)
}

func (s *Span) emit(depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.traceID,
		"span", s.name,
		"duration_ms", s.elapsed.Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := s.children
	s.mu.Unlock()

	slog.Debug("span", attrs...)
	for _, child := range children {
		child.emit(depth + 1)
	}
}
