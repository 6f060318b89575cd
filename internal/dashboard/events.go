package dashboard

// EventType identifies the shape of an Event's Payload, mirroring the
// websocket message table every connected dashboard client reads from.
type EventType string

const (
	EventStatus           EventType = "status"
	EventCallIncoming     EventType = "call_incoming"
	EventCallActive       EventType = "call_active"
	EventCallEnded        EventType = "call_ended"
	EventCallRejected     EventType = "call_rejected"
	EventTranscript       EventType = "transcript"
	EventFunctionCall     EventType = "function_call"
	EventFunctionResult   EventType = "function_result"
	EventAgentChanged     EventType = "agent_changed"
	EventAIState          EventType = "ai_state"
	EventCallCost         EventType = "call_cost"
	EventModelChanged     EventType = "model_changed"
	EventBlacklistUpdated EventType = "blacklist_updated"
	EventWhitelistUpdated EventType = "whitelist_updated"
)

// Event is one message broadcast to every connected dashboard client.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// StatusPayload is the full snapshot sent to a client immediately on
// connect and re-broadcast whenever registration or call state changes.
type StatusPayload struct {
	SIPRegistered   bool     `json:"sip_registered"`
	CallActive      bool     `json:"call_active"`
	CallerID        string   `json:"caller_id,omitempty"`
	ActiveAgent     string   `json:"active_agent,omitempty"`
	AvailableAgents []string `json:"available_agents"`
	CurrentModel    string   `json:"current_model,omitempty"`
}

type CallIncomingPayload struct {
	CallerID string `json:"caller_id"`
}

type CallActivePayload struct {
	CallerID string `json:"caller_id"`
	Agent    string `json:"agent"`
}

type CallEndedPayload struct {
	Reason string `json:"reason"`
}

type CallRejectedPayload struct {
	CallerID string `json:"caller_id"`
	Reason   string `json:"reason"`
}

type TranscriptPayload struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type FunctionCallPayload struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

type FunctionResultPayload struct {
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
}

type AgentChangedPayload struct {
	OldAgent string `json:"old_agent"`
	NewAgent string `json:"new_agent"`
}

type AIStatePayload struct {
	State string `json:"state"`
}

type CallCostPayload struct {
	CostCents float64 `json:"cost_cents"`
}

type ModelChangedPayload struct {
	Model string `json:"model"`
}

// commandMessage is an inbound dashboard-originated command, read from a
// client's websocket connection and routed to the active call, if any.
type commandMessage struct {
	Type      string `json:"type"`
	AgentName string `json:"agent_name,omitempty"`
}

const (
	commandHangup      = "hangup"
	commandMuteAI      = "mute_ai"
	commandUnmuteAI    = "unmute_ai"
	commandSwitchAgent = "switch_agent"
)
