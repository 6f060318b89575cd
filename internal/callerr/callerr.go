// Package callerr defines the typed error kinds used across callgate's
// call-handling path: a small Kind enum attached to a wrapping error type,
// so a caller can branch on failure category (e.g. SIP response code
// selection) while %w-wrapping still works with errors.Is/As.
package callerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of a small set of abstract categories,
// each with its own handling policy.
type Kind int

const (
	// KindUnknown is the zero value; never intentionally produced.
	KindUnknown Kind = iota
	// KindNetworkTransient covers SIP registration and AI websocket
	// connectivity failures: exponential backoff reconnect, never fatal.
	KindNetworkTransient
	// KindAuthPermanent covers SIP digest or AI API key rejection: log and
	// mark the component unhealthy, no auto-retry.
	KindAuthPermanent
	// KindProtocolViolation covers malformed SIP/SDP or realtime-API
	// messages: terminate the current call only.
	KindProtocolViolation
	// KindCodecUnsupported covers SDP offers with no common codec: reject
	// the specific call with SIP 488, keep serving.
	KindCodecUnsupported
	// KindOverload covers queue overflow: drop oldest and log, visible on
	// the dashboard.
	KindOverload
	// KindAccessDenied covers blacklist rejection and the locked-tool
	// sentinel: deterministic rejection, never a crash.
	KindAccessDenied
	// KindInternalInvariant covers an invariant violation (e.g. two
	// response.created events with no intervening response.done):
	// terminate the current call only, process survives.
	KindInternalInvariant
)

func (k Kind) String() string {
	switch k {
	case KindNetworkTransient:
		return "network_transient"
	case KindAuthPermanent:
		return "auth_permanent"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindCodecUnsupported:
		return "codec_unsupported"
	case KindOverload:
		return "overload"
	case KindAccessDenied:
		return "access_denied"
	case KindInternalInvariant:
		return "internal_invariant"
	default:
		return "unknown"
	}
}

// CallGateError wraps an underlying error with a Kind so callers can branch
// on failure category without string-matching.
type CallGateError struct {
	Kind Kind
	Op   string // short operation name, e.g. "sip.register", "aisession.connect"
	Err  error
}

func (e *CallGateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CallGateError) Unwrap() error { return e.Err }

// New builds a CallGateError wrapping err with the given kind and operation
// name.
func New(kind Kind, op string, err error) *CallGateError {
	return &CallGateError{Kind: kind, Op: op, Err: err}
}

// Newf builds a CallGateError from a formatted message, with no wrapped
// error.
func Newf(kind Kind, op, format string, args ...any) *CallGateError {
	return &CallGateError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *CallGateError, otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var cge *CallGateError
	if errors.As(err, &cge) {
		return cge.Kind
	}
	return KindUnknown
}

// Sentinel errors for conditions checked with errors.Is rather than a Kind
// switch.
var (
	// ErrCallBusy is returned when a second INVITE arrives while a call is
	// already active (this node handles one active call at a time).
	ErrCallBusy = errors.New("a call is already active")
	// ErrBlacklisted is returned by the access store's pre-gate check for a
	// blacklisted caller ID.
	ErrBlacklisted = errors.New("caller is blacklisted")
	// ErrLocked is returned when a non-gate tool is invoked before the
	// security gate has unlocked the call.
	ErrLocked = errors.New("call is not unlocked")
	// ErrAgentNotFound is returned by the registry for an unknown agent name.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrGateNotSwitchable is returned when a switch request (dashboard or
	// tool) names the security gate as a target agent, which is never a
	// valid switch destination.
	ErrGateNotSwitchable = errors.New("cannot switch to the security gate")
	// ErrResponseInProgress is the recoverable race from the realtime API's
	// "already has an active response" error .
	ErrResponseInProgress = errors.New("response already in progress")
)
