package agent

import "strings"

// Reserved tool-handler return values consumed by Manager.ExecuteTool and
// never forwarded to the AI. Keeping these at the AI-tool boundary is cheap
// and testable, but requires the raw string never travel past the manager
// -- parseDirective is the one place that string is read.
const (
	sentinelSwitchPrefix = "__SWITCH__:"
	sentinelBeep         = "__BEEP__"
	sentinelHangup       = "__HANGUP__"
	sentinelBlocked      = "__BLOCKED__"

	// ExitToolName is the implicit tool every non-gate, non-main descriptor
	// gets without needing to declare it in agents.yaml: it always returns
	// to the main agent.
	ExitToolName = "exit"
)

// SentinelSwitch builds the raw sentinel string a tool handler returns to
// request an agent switch to target.
func SentinelSwitch(target string) string { return sentinelSwitchPrefix + target }

// SentinelBeep and SentinelHangup are the raw sentinel strings for the
// other two control directives.
const (
	SentinelBeep   = sentinelBeep
	SentinelHangup = sentinelHangup
)

// DirectiveKind classifies a parsed tool result.
type DirectiveKind int

const (
	// DirectiveReply is an ordinary result forwarded to the AI unchanged.
	DirectiveReply DirectiveKind = iota
	// DirectiveSwitch requests an agent change; Target is the resolved
	// descriptor to switch to.
	DirectiveSwitch
	// DirectiveBeep requests the cached beep tone be queued on the SIP TX
	// stream with the AI muted until the next response completes.
	DirectiveBeep
	// DirectiveHangup requests the SIP adapter tear the call down.
	DirectiveHangup
	// DirectiveBlocked is returned instead of dispatching any tool when the
	// call is locked and the active agent is not the gate.
	DirectiveBlocked
	// DirectiveModelSwitch requests the AI session hot-swap to ModelTier.
	DirectiveModelSwitch
)

// Directive is the tagged variant the design requires in place of the
// raw sentinel string once it crosses Manager.ExecuteTool.
type Directive struct {
	Kind   DirectiveKind
	Target Descriptor // valid for DirectiveSwitch
	Model  ModelTier  // valid for DirectiveModelSwitch
	Text   string     // valid for DirectiveReply and DirectiveBlocked
}

// parseDirective classifies a raw tool-handler result string into a
// Directive. The Target field of a DirectiveSwitch result is left zero;
// Manager.ExecuteTool resolves it against the registry immediately after.
func parseDirective(result string) (kind DirectiveKind, switchTarget string, model ModelTier, text string) {
	switch {
	case result == sentinelBeep:
		return DirectiveBeep, "", "", ""
	case result == sentinelHangup:
		return DirectiveHangup, "", "", ""
	case strings.HasPrefix(result, sentinelSwitchPrefix):
		return DirectiveSwitch, strings.TrimPrefix(result, sentinelSwitchPrefix), "", ""
	case strings.HasPrefix(result, sentinelModelPrefix):
		return DirectiveModelSwitch, "", ModelTier(strings.TrimPrefix(result, sentinelModelPrefix)), ""
	default:
		return DirectiveReply, "", "", result
	}
}
