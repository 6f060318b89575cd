// Package models defines the rows persisted by callgate: call records and
// the caller-ID access store (blacklist, whitelist, failed unlock attempts).
package models

import "time"

// TranscriptLine is one turn of the call transcript: who spoke and what was
// said or transcribed. Call.Transcript is a JSON-encoded slice of these.
type TranscriptLine struct {
	Role string `json:"role"` // "user", "assistant", or "system"
	Text string `json:"text"`
}

// Call represents one accepted inbound call, from accept through teardown.
// It is the CDR-equivalent row for this system: one per call, updated in
// place as the call progresses and finalized at hangup.
type Call struct {
	ID           int64
	CallID       string // SIP Call-ID, unique per call
	CallerIDName string
	CallerIDNum  string
	StartedAt    time.Time
	EndedAt      *time.Time
	DurationS    *int
	Unlocked     bool
	FinalAgent   string
	CostCents    float64
	HangupCause  string
	Transcript   string // JSON-encoded []TranscriptLine
	Logs         string // captured log records for the call's duration
}

// Blacklist represents a caller ID permanently denied access to the
// security gate; INVITEs from a blacklisted caller are rejected before any
// agent runs.
type Blacklist struct {
	ID        int64
	CallerID  string
	Reason    string
	CreatedAt time.Time
}

// Whitelist represents a caller ID that bypasses the security gate
// entirely and is routed straight to the main agent unlocked.
type Whitelist struct {
	ID        int64
	CallerID  string
	Note      string
	CreatedAt time.Time
}

// FailedUnlockCall records a single failed unlock attempt for a caller ID.
// Three records within a 12-hour window trigger auto-blacklisting.
type FailedUnlockCall struct {
	ID        int64
	CallerID  string
	CallID    string
	CodeTried string
	CreatedAt time.Time
}
