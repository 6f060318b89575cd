package agent

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
)

// GateAgentName and MainAgentName are the two Go-native built-in agents
// every process registers, regardless of what agents.yaml adds.
const (
	GateAgentName = "security_gate"
	MainAgentName = "main_agent"
)

// maxGateFailures is the per-call unlock-attempt limit; the third failure
// hangs up instead of beeping.
const maxGateFailures = 3

const unlockToolSchema = `{
  "name": "unlock",
  "description": "Attempt to unlock the call with a spoken access code. The assistant does not know the code and must ask the caller for it.",
  "parameters": {
    "type": "object",
    "properties": {
      "code": {"type": "string", "description": "the code the caller spoke"}
    },
    "required": ["code"]
  }
}`

// unlockFailureRecorder is the subset of internal/access.Store the gate
// needs: recording a failed attempt and letting the store decide whether
// that trips auto-promotion to the blacklist. Declared here (not imported
// from internal/access) to keep this package free of a dependency on the
// database-backed store.
type unlockFailureRecorder interface {
	RecordFailedUnlock(ctx context.Context, callerID, callID, codeTried string) (promoted bool, err error)
}

// NewSecurityGate builds the silent default agent every call starts in.
// Its keyword set is empty and it is never a valid switch target
// (Descriptor.IsGate), so no other agent's intent match can route to it
// and no tool or dashboard command can switch back to it.
func NewSecurityGate(unlockCode string, failures unlockFailureRecorder, logger *slog.Logger) Descriptor {
	logger = logger.With("agent", GateAgentName)
	return Descriptor{
		Name:        GateAgentName,
		DisplayName: "Security Gate",
		Description: "Silent gatekeeper that holds every call until the caller speaks the unlock code.",
		Keywords:    nil,
		Instructions: "You are a silent telephone gatekeeper. The caller must speak an access code before you can help " +
			"them with anything else. You do not know the code yourself -- only the unlock tool can check it. Ask the " +
			"caller for the code and call unlock with whatever they say. Never guess or state the code. If unlock " +
			"fails, ask them to try again without revealing why it failed.",
		Tools: []Tool{
			{
				Name:    "unlock",
				Schema:  json.RawMessage(unlockToolSchema),
				Handler: unlockHandler(unlockCode, failures, logger),
			},
		},
	}
}

func unlockHandler(unlockCode string, failures unlockFailureRecorder, logger *slog.Logger) ToolHandler {
	return func(ctx context.Context, call *CallContext, args json.RawMessage) (string, error) {
		var req struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "", fmt.Errorf("unlock: invalid arguments: %w", err)
		}

		if subtle.ConstantTimeCompare([]byte(req.Code), []byte(unlockCode)) == 1 {
			return SentinelSwitch(MainAgentName), nil
		}

		if failures != nil {
			if _, err := failures.RecordFailedUnlock(ctx, call.CallerIDNum, call.CallID, req.Code); err != nil {
				logger.Error("recording failed unlock", "error", err, "call_id", call.CallID)
			}
		}

		if n := call.IncrementGateFailures(); n >= maxGateFailures {
			logger.Warn("unlock attempts exhausted, hanging up", "call_id", call.CallID, "attempts", n)
			return SentinelHangup, nil
		}
		return SentinelBeep, nil
	}
}
