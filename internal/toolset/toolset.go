// Package toolset provides the default agent.ExternalToolset: specialist
// domain tools (sandboxes, notebooks, and the like) are out of scope for
// this module and modeled as external collaborators reached through an
// interface.
package toolset

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Stub satisfies agent.ExternalToolset without calling out anywhere: it
// logs the request and returns a fixed acknowledgement. A deployment
// wiring in real specialist tools replaces this with its own
// implementation of the same interface.
type Stub struct {
	logger *slog.Logger
}

// NewStub builds a Stub toolset.
func NewStub(logger *slog.Logger) *Stub {
	return &Stub{logger: logger.With("component", "toolset-stub")}
}

// Handle implements agent.ExternalToolset.
func (s *Stub) Handle(ctx context.Context, agentName, toolName string, args json.RawMessage) (string, error) {
	s.logger.Warn("external tool not implemented, returning stub result", "agent", agentName, "tool", toolName)
	return "this tool is not available right now", nil
}
