package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/contactops/contact-pipeline/pkg/logger"
)

// RequestID returns middleware that attaches a request ID to the context,
// taking it from the X-Request-ID header when the caller supplies one and
// generating a random one otherwise. The ID is echoed back in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}
