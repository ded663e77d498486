package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Timeout bounds every request with a deadline. The handler runs in its own
// goroutine; if the deadline fires before it writes anything, the client gets
// a 504 and the handler's late writes are discarded by the response guard.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			gw := &guardedWriter{rw: w}
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if gw.abort() {
					slog.Warn("request deadline exceeded",
						"method", r.Method,
						"path", r.URL.Path,
						"limit", limit,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					w.Write([]byte(`{"error":"request timeout"}`))
				}
			}
		})
	}
}

// guardedWriter lets exactly one writer win: the handler or the timeout
// response, never an interleaving of both. Once the timeout response has
// claimed the connection, handler writes are swallowed; the underlying
// ResponseWriter must not be touched after the outer handler returns.
type guardedWriter struct {
	rw http.ResponseWriter

	mu       sync.Mutex
	touched  bool
	timedOut bool
}

// abort claims the response for the timeout path. It fails when the handler
// has already written, in which case the response is left alone.
func (g *guardedWriter) abort() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.touched {
		return false
	}
	g.timedOut = true
	return true
}

func (g *guardedWriter) Header() http.Header {
	return g.rw.Header()
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timedOut {
		return
	}
	g.touched = true
	g.rw.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timedOut {
		// Pretend the write succeeded so the handler unwinds normally.
		return len(b), nil
	}
	g.touched = true
	return g.rw.Write(b)
}
