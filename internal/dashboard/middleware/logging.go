package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// wrapResponseWriter wraps http.ResponseWriter to capture the status code,
// since the dashboard's operator console has no other way to learn what a
// handler actually sent once ServeHTTP returns.
type wrapResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newWrapResponseWriter(w http.ResponseWriter) *wrapResponseWriter {
	return &wrapResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *wrapResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// isCallsPath reports whether the request targets the /calls REST surface,
// the one endpoint group the reaper's long-poll dashboard clients hit
// repeatedly -- those requests are logged at Debug instead of Info so a
// quiet operator console doesn't drown out agent/task/access-list activity.
func isCallsPath(path string) bool {
	return strings.HasPrefix(path, "/calls")
}

// StructuredLogger returns middleware that logs each request to the
// dashboard's REST surface (agents, tasks, blacklist, whitelist, calls)
// using log/slog. It captures the request ID (set by chi's RequestID
// middleware), HTTP method, path, response status, and duration.
func StructuredLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newWrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		reqID := chimw.GetReqID(r.Context())
		duration := time.Since(start)

		level := slog.LevelInfo
		if isCallsPath(r.URL.Path) {
			level = slog.LevelDebug
		}

		slog.Log(r.Context(), level, "dashboard request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}
