package aisession

import (
	"log/slog"
	"reflect"
	"testing"

	"github.com/callgate/callgate/internal/agent"
)

func TestPCM16Base64RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	encoded := pcm16ToBase64(samples)
	decoded, err := base64ToPCM16(encoded)
	if err != nil {
		t.Fatalf("base64ToPCM16: %v", err)
	}
	if !reflect.DeepEqual(samples, decoded) {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, samples)
	}
}

func TestIsActiveResponseRace(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"Conversation already has an active response", true},
		{"ALREADY HAS AN ACTIVE RESPONSE in progress", true},
		{"invalid audio format", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isActiveResponseRace(c.message); got != c.want {
			t.Errorf("isActiveResponseRace(%q) = %v, want %v", c.message, got, c.want)
		}
	}
}

// TestStop_ClearsResponseInProgress covers testable property 1: a response
// left in flight when Stop is called (e.g. Run exiting via ctx.Done() or on
// ai_session_closed) must not leak response_in_progress=true past teardown,
// since the supervisor finalizes the call immediately after Stop returns.
func TestStop_ClearsResponseInProgress(t *testing.T) {
	s := New(Options{}, slog.Default())

	s.mu.Lock()
	s.inProg = true
	s.mu.Unlock()

	s.Stop()

	if s.ResponseInProgress() {
		t.Fatal("expected response_in_progress to be false after Stop, even with a response left in flight")
	}
}

// TestStop_WithoutStart covers the case where a session never
// successfully connects; Stop must still clear the flag rather than assume
// Start always ran first.
func TestStop_WithoutStart(t *testing.T) {
	s := New(Options{}, slog.Default())
	s.Stop()
	if s.ResponseInProgress() {
		t.Fatal("expected response_in_progress to be false after Stop")
	}
}

func TestDirectiveResultText(t *testing.T) {
	cases := []struct {
		name string
		d    agent.Directive
		want string
	}{
		{"reply", agent.Directive{Kind: agent.DirectiveReply, Text: "looked it up"}, "looked it up"},
		{"blocked", agent.Directive{Kind: agent.DirectiveBlocked, Text: "call is locked"}, "call is locked"},
		{"switch", agent.Directive{Kind: agent.DirectiveSwitch, Target: agent.Descriptor{Name: "billing"}}, "switched to billing"},
		{"beep", agent.Directive{Kind: agent.DirectiveBeep}, "incorrect code"},
		{"hangup", agent.Directive{Kind: agent.DirectiveHangup}, "ending call"},
		{"model", agent.Directive{Kind: agent.DirectiveModelSwitch, Model: agent.ModelPremium}, "switching to premium model"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := directiveResultText(c.d); got != c.want {
				t.Errorf("directiveResultText(%+v) = %q, want %q", c.d, got, c.want)
			}
		})
	}
}
