package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Recoverer returns middleware that recovers from panics in a dashboard REST
// handler, logs the stack trace, and returns a 500 JSON error instead of
// tearing down the whole process -- a malformed blacklist entry or a bad
// call-history query should never take the operator console offline while a
// call is in progress.
// It is mounted after chi's RequestID so the request ID is available.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				reqID := chimw.GetReqID(r.Context())
				stack := debug.Stack()

				slog.Error("dashboard handler panic recovered",
					"request_id", reqID,
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(stack),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(authEnvelope{Error: "internal server error"}) //nolint:errcheck
			}
		}()

		next.ServeHTTP(w, r)
	})
}
