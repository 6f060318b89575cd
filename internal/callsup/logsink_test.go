package callsup

import (
	"log/slog"
	"strings"
	"testing"
)

func TestCallLogHandlerCapturesRecords(t *testing.T) {
	h := newCallLogHandler(slog.LevelInfo)
	logger := slog.New(h).With("call_id", "abc-123")

	logger.Info("call accepted", "codec", "PCMU")
	logger.Warn("queue half full")

	captured := h.String()
	if !strings.Contains(captured, "call accepted") {
		t.Errorf("captured logs missing info record: %q", captured)
	}
	if !strings.Contains(captured, "queue half full") {
		t.Errorf("captured logs missing warn record: %q", captured)
	}
	if !strings.Contains(captured, "call_id=abc-123") {
		t.Errorf("captured logs missing call_id attr: %q", captured)
	}
}

func TestCallLogHandlerRespectsLevel(t *testing.T) {
	h := newCallLogHandler(slog.LevelInfo)
	logger := slog.New(h)

	logger.Debug("below threshold")
	if got := h.String(); got != "" {
		t.Errorf("debug record should not be captured at info level, got %q", got)
	}
}

func TestCallLogHandlerDerivedHandlersShareBuffer(t *testing.T) {
	h := newCallLogHandler(slog.LevelDebug)

	base := slog.New(h)
	derived := base.With("subsystem", "aisession").WithGroup("usage")

	base.Info("from base")
	derived.Info("from derived", "tokens", 42)

	captured := h.String()
	if !strings.Contains(captured, "from base") || !strings.Contains(captured, "from derived") {
		t.Errorf("derived handler did not share the capture buffer: %q", captured)
	}
}
