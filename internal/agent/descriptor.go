// Package agent implements the agent registry and per-call manager: agents
// are registered once at startup into a flat name-keyed table, and a
// per-call Manager dispatches tool calls against whichever one is active.
package agent

import (
	"context"
	"encoding/json"
)

// ModelTier names the two model tiers a descriptor may prefer.
type ModelTier string

const (
	ModelNone    ModelTier = ""
	ModelMini    ModelTier = "mini"
	ModelPremium ModelTier = "premium"
)

// ToolHandler executes one tool call. call carries the per-call scratch
// state (e.g. the security gate's unlock-failure counter) a handler may
// need; args is the raw JSON arguments the AI supplied. The returned string
// is forwarded to the AI verbatim unless it is one of the reserved
// sentinels (see directive.go), which Manager.ExecuteTool intercepts.
type ToolHandler func(ctx context.Context, call *CallContext, args json.RawMessage) (string, error)

// Tool is one callable surface an agent exposes to the AI: a name, its
// JSON-schema argument description, and the Go handler invoked when the AI
// calls it.
type Tool struct {
	Name    string
	Schema  json.RawMessage
	Handler ToolHandler
}

// Descriptor is an immutable, process-lifetime bundle of an agent's
// identity, routing metadata, and tools.
// Descriptors never carry mutable state; per-call scratch lives in
// CallContext instead.
type Descriptor struct {
	Name           string
	DisplayName    string
	Description    string
	Keywords       []string
	PreferredModel ModelTier
	Greeting       string
	Voice          string
	Instructions   string
	Tools          []Tool
}

// IsGate reports whether d is the security gate: the gate is never a valid
// switch target and is the sole agent exempt from the unlock check.
func (d Descriptor) IsGate() bool { return d.Name == GateAgentName }

// Tool looks up one of d's tools by name.
func (d Descriptor) Tool(name string) (Tool, bool) {
	for _, t := range d.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// ToolSchemas returns the JSON schema list for every tool d exposes, in the
// shape the realtime AI session's session.update message embeds verbatim.
func (d Descriptor) ToolSchemas() []json.RawMessage {
	schemas := make([]json.RawMessage, 0, len(d.Tools))
	for _, t := range d.Tools {
		schemas = append(schemas, t.Schema)
	}
	return schemas
}
