package callsup

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// logCapture is the shared, mutex-guarded buffer every derived
// callLogHandler (via WithAttrs/WithGroup) writes into.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// callLogHandler is a slog.Handler that captures every record logged
// through it into an in-memory buffer, tagged implicitly by construction:
// one handler instance (and everything derived from it via With/WithGroup)
// lives for exactly one call's duration. Instead of hooking the process
// root logger, the supervisor builds a per-call logger
// (slog.New(handler).With("call_id", ...)) and hands it to every component
// the call touches, so nothing outside this call ever sees its records
// through this handler.
type callLogHandler struct {
	capture *logCapture
	inner   slog.Handler
}

// newCallLogHandler builds a capturing handler wrapping a text-formatted
// inner handler so captured lines read the same as the process' own
// stdout log lines.
func newCallLogHandler(level slog.Leveler) *callLogHandler {
	c := &logCapture{}
	return &callLogHandler{
		capture: c,
		inner:   slog.NewTextHandler(&c.buf, &slog.HandlerOptions{Level: level}),
	}
}

func (h *callLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *callLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.capture.mu.Lock()
	defer h.capture.mu.Unlock()
	return h.inner.Handle(ctx, r)
}

func (h *callLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &callLogHandler{capture: h.capture, inner: h.inner.WithAttrs(attrs)}
}

func (h *callLogHandler) WithGroup(name string) slog.Handler {
	return &callLogHandler{capture: h.capture, inner: h.inner.WithGroup(name)}
}

// String returns everything captured so far, for persisting into the
// Call's Logs column at teardown.
func (h *callLogHandler) String() string {
	h.capture.mu.Lock()
	defer h.capture.mu.Unlock()
	return h.capture.buf.String()
}
