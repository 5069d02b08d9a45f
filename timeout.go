package dispatch

import (
	"context"
	"net/http"
	"time"
)

// Timeout returns middleware that adds a timeout to the request context.
// If the pipeline has not produced a response when it expires, the request
// is answered with 503 Service Unavailable.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeoutCause(r.Context(), d, ErrTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrTimeout is the cause of a request cancelled by the Timeout middleware.
var ErrTimeout = Error(http.StatusServiceUnavailable, "request timed out")
