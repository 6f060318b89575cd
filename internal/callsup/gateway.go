package callsup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/callgate/callgate/internal/access"
	"github.com/callgate/callgate/internal/agent"
	"github.com/callgate/callgate/internal/aisession"
	"github.com/callgate/callgate/internal/config"
	"github.com/callgate/callgate/internal/dashboard"
	"github.com/callgate/callgate/internal/database"
	"github.com/callgate/callgate/internal/media"
)

// sipHangup is the narrow surface a Gateway needs from the SIP adapter: the
// ability to send a BYE for a given call. Declaring it here, rather than
// importing internal/sip, breaks the adapter-needs-a-handler /
// handler-needs-the-adapter cycle; main wires the concrete *sip.Adapter in
// via SetAdapter once both sides exist.
type sipHangup interface {
	Hangup(callID string)
}

// Gateway implements sip.CallHandler: it is the SIP adapter's entry point
// into the access-control and agent-routing layers, and constructs one
// Supervisor per accepted call.
type Gateway struct {
	cfg      *config.Config
	registry *agent.Registry
	access   *access.Store
	calls    database.CallRepository
	prices   aisession.PriceTable
	hub      *dashboard.Hub
	logger   *slog.Logger

	mu      sync.Mutex
	adapter sipHangup
}

// NewGateway builds a Gateway. SetAdapter must be called before the first
// call arrives.
func NewGateway(cfg *config.Config, registry *agent.Registry, accessStore *access.Store, calls database.CallRepository, prices aisession.PriceTable, hub *dashboard.Hub, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		access:   accessStore,
		calls:    calls,
		prices:   prices,
		hub:      hub,
		logger:   logger.With("component", "callsup"),
	}
}

// SetAdapter wires the SIP adapter in after construction.
func (g *Gateway) SetAdapter(a sipHangup) {
	g.mu.Lock()
	g.adapter = a
	g.mu.Unlock()
}

// Authorize implements sip.CallHandler: a blacklisted caller is rejected
// before any SDP negotiation or media setup happens.
func (g *Gateway) Authorize(ctx context.Context, callerIDNum string) bool {
	decision, reason, err := g.access.Check(ctx, callerIDNum)
	if err != nil {
		g.logger.Error("access check failed, allowing call through", "error", err, "caller_id", callerIDNum)
		return true
	}
	if decision == access.DecisionBlacklisted {
		g.logger.Info("rejecting blacklisted caller", "caller_id", callerIDNum, "reason", reason)
		g.hub.Publish(dashboard.EventCallRejected, dashboard.CallRejectedPayload{CallerID: callerIDNum, Reason: "blacklist: " + reason})
		return false
	}
	return true
}

// HandleCall implements sip.CallHandler: it resolves the starting agent
// (the security gate, unless the caller is whitelisted), builds a
// Supervisor, and runs it for the lifetime of the call.
func (g *Gateway) HandleCall(ctx context.Context, callID, callerIDName, callerIDNum string, term *media.Termination) string {
	g.hub.Publish(dashboard.EventCallIncoming, dashboard.CallIncomingPayload{CallerID: callerIDNum})

	decision, _, err := g.access.Check(ctx, callerIDNum)
	if err != nil {
		g.logger.Error("access check failed during call setup, defaulting to locked", "error", err, "caller_id", callerIDNum)
		decision = access.DecisionNormal
	}

	gateDesc, _ := g.registry.Get(agent.GateAgentName)
	mainDesc, _ := g.registry.Get(agent.MainAgentName)

	initial := gateDesc
	unlocked := false
	if decision == access.DecisionWhitelisted {
		initial = mainDesc
		unlocked = true
	}

	callCtx := agent.NewCallContext(callID, callerIDName, callerIDNum)
	manager := agent.NewManager(g.registry, callCtx, initial, unlocked, g.logger)

	logHandler := newCallLogHandler(g.cfg.SlogLevel())
	callLogger := slog.New(logHandler).With("call_id", callID, "caller_id", callerIDNum)

	g.mu.Lock()
	adapter := g.adapter
	g.mu.Unlock()

	sup := NewSupervisor(Options{
		CallID:       callID,
		CallerIDName: callerIDName,
		CallerIDNum:  callerIDNum,
		Config:       g.cfg,
		Manager:      manager,
		Prices:       g.prices,
		Calls:        g.calls,
		Hub:          g.hub,
		SIPHangup:    adapter,
		LogSink:      logHandler,
	}, callLogger)

	g.hub.SetActive(sup, callID, callerIDNum, initial.Name)
	g.hub.Publish(dashboard.EventCallActive, dashboard.CallActivePayload{CallerID: callerIDNum, Agent: initial.Name})

	cause := sup.Run(ctx, term)

	g.hub.ClearActive(cause)
	return cause
}
