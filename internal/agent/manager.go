package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/callgate/callgate/internal/callerr"
)

// Manager holds exactly one active descriptor plus the call_unlocked flag
// for one call, never shared across calls -- there is never more than one
// active call per manager.
type Manager struct {
	registry *Registry
	call     *CallContext
	logger   *slog.Logger

	mu       sync.Mutex
	active   Descriptor
	unlocked bool
}

// NewManager builds a manager for one call, starting on initial with
// call_unlocked set to unlocked: the security gate and false for an
// ordinary caller, the main agent and true for a whitelisted one.
func NewManager(registry *Registry, call *CallContext, initial Descriptor, unlocked bool, logger *slog.Logger) *Manager {
	return &Manager{
		registry: registry,
		call:     call,
		logger:   logger.With("subsystem", "agent-manager", "call_id", call.CallID),
		active:   initial,
		unlocked: unlocked,
	}
}

// Active returns the currently active descriptor.
func (m *Manager) Active() Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Unlocked reports whether call_unlocked is currently set.
func (m *Manager) Unlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlocked
}

// ExecuteTool runs a named tool on the active agent: block non-gate tools
// while locked, otherwise dispatch and translate any sentinel result into a
// Directive the supervisor acts on. The raw sentinel string never escapes
// this method.
func (m *Manager) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (Directive, error) {
	m.mu.Lock()
	active := m.active
	unlocked := m.unlocked
	m.mu.Unlock()

	if !unlocked && !active.IsGate() {
		m.logger.Info("blocked tool call while locked", "agent", active.Name, "tool", toolName)
		return Directive{Kind: DirectiveBlocked, Text: "call is locked; ask the caller for the unlock code"}, nil
	}

	if toolName == ExitToolName && active.Name != GateAgentName && active.Name != MainAgentName {
		return m.switchTo(MainAgentName, active)
	}

	tool, ok := active.Tool(toolName)
	if !ok {
		return Directive{}, fmt.Errorf("tool %q not found on agent %q", toolName, active.Name)
	}

	result, err := tool.Handler(ctx, m.call, args)
	if err != nil {
		return Directive{}, fmt.Errorf("executing tool %q: %w", toolName, err)
	}

	kind, switchTarget, model, text := parseDirective(result)
	switch kind {
	case DirectiveSwitch:
		return m.switchTo(switchTarget, active)
	case DirectiveBeep:
		return Directive{Kind: DirectiveBeep}, nil
	case DirectiveHangup:
		return Directive{Kind: DirectiveHangup}, nil
	case DirectiveModelSwitch:
		return Directive{Kind: DirectiveModelSwitch, Model: model}, nil
	default:
		return Directive{Kind: DirectiveReply, Text: text}, nil
	}
}

// switchTo resolves target against the registry and mutates active-agent
// state, rejecting a switch into the security gate.
func (m *Manager) switchTo(target string, from Descriptor) (Directive, error) {
	d, ok := m.registry.Get(target)
	if !ok {
		return Directive{}, fmt.Errorf("switch target %q: %w", target, callerr.ErrAgentNotFound)
	}
	if d.IsGate() {
		return Directive{}, callerr.ErrGateNotSwitchable
	}

	m.mu.Lock()
	wasGate := from.Name == GateAgentName
	m.active = d
	if d.Name == MainAgentName && wasGate {
		m.unlocked = true
	}
	m.mu.Unlock()

	m.logger.Info("agent switched", "from", from.Name, "to", d.Name)
	return Directive{Kind: DirectiveSwitch, Target: d}, nil
}

// SetActive forces the active descriptor and call_unlocked directly,
// bypassing the registry lookup and gate-target check of a switch.
func (m *Manager) SetActive(d Descriptor, unlocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = d
	m.unlocked = unlocked
}

// SwitchCommand handles a dashboard-originated switch_agent command,
// applying the same gate-target rejection as a tool-driven switch but
// without touching call_unlocked (an operator override is not a
// gate-unlock event).
func (m *Manager) SwitchCommand(agentName string) (Descriptor, error) {
	d, ok := m.registry.Get(agentName)
	if !ok {
		return Descriptor{}, fmt.Errorf("switch target %q: %w", agentName, callerr.ErrAgentNotFound)
	}
	if d.IsGate() {
		return Descriptor{}, callerr.ErrGateNotSwitchable
	}
	m.mu.Lock()
	m.active = d
	m.mu.Unlock()
	m.logger.Info("agent switched by dashboard command", "to", d.Name)
	return d, nil
}
