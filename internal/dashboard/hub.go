package dashboard

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// clientSendBuffer bounds each client's outbound queue; once a client's
// queue is full, further events for it are dropped rather than stalling the
// broadcaster, the same non-blocking-send-with-drop idiom as
// internal/audio.FrameQueue. The client itself stays connected and
// registered.
const clientSendBuffer = 32

// writeWait bounds a single websocket write.
const writeWait = 5 * time.Second

// CallController is the narrow surface the dashboard needs to steer the
// one active call, implemented structurally by internal/callsup.Supervisor.
// Declaring it here (rather than importing callsup) keeps this package free
// of a dependency on the call-handling side: callsup imports dashboard,
// never the reverse.
type CallController interface {
	Hangup()
	MuteAI()
	UnmuteAI()
	SwitchAgent(name string) error
}

// Hub fans out Events to every connected dashboard client and routes
// inbound commands to whichever call is currently active, if any.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu              sync.Mutex
	clients         map[*wsClient]struct{}
	active          CallController
	activeCallID    string
	activeStartedAt time.Time
	callerID        string
	agentName       string
	sipRegistered   bool
	model           string
	availableAgents []string
}

// Task is the dashboard's view of a cancellable background unit of work.
// This node runs exactly one active call at a time, so there is at most
// one task: the active call itself, surfaced this way because the
// supervisor's own description of its job is "own goroutines/tasks" per
// call.
type Task struct {
	ID        string    `json:"id"`
	CallerID  string    `json:"caller_id"`
	Agent     string    `json:"agent"`
	StartedAt time.Time `json:"started_at"`
}

// Tasks returns the current task list: zero or one entries.
func (h *Hub) Tasks() []Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return []Task{}
	}
	return []Task{{ID: h.activeCallID, CallerID: h.callerID, Agent: h.agentName, StartedAt: h.activeStartedAt}}
}

// CancelTask hangs up the task with the given id. Returns false if no task
// with that id is currently active.
func (h *Hub) CancelTask(id string) bool {
	h.mu.Lock()
	active := h.active
	match := h.activeCallID == id
	h.mu.Unlock()
	if active == nil || !match {
		return false
	}
	active.Hangup()
	return true
}

type wsClient struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub builds an empty hub; origins are checked by the dashboard
// middleware stack, not here, so the upgrader accepts any request that
// reaches it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("subsystem", "dashboard-hub"),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetAvailableAgents records the full agent name list reported in every
// status snapshot.
func (h *Hub) SetAvailableAgents(names []string) {
	h.mu.Lock()
	h.availableAgents = names
	h.mu.Unlock()
}

// SetRegistered updates the SIP trunk registration flag carried in status
// snapshots, re-broadcasting the new status to every connected client.
func (h *Hub) SetRegistered(registered bool) {
	h.mu.Lock()
	h.sipRegistered = registered
	snap := h.snapshotLocked()
	h.mu.Unlock()
	h.Publish(EventStatus, snap)
}

// SetActive attaches controller as the call a dashboard command targets,
// called once per accepted call. callerID and the starting agent name seed
// the next status snapshot.
func (h *Hub) SetActive(controller CallController, callID, callerID, agentName string) {
	h.mu.Lock()
	h.active = controller
	h.activeCallID = callID
	h.activeStartedAt = time.Now()
	h.callerID = callerID
	h.agentName = agentName
	snap := h.snapshotLocked()
	h.mu.Unlock()
	h.Publish(EventStatus, snap)
}

// SetActiveAgent updates the agent name carried in status snapshots,
// called by the supervisor on every switch.
func (h *Hub) SetActiveAgent(name string) {
	h.mu.Lock()
	h.agentName = name
	h.mu.Unlock()
}

// SetActiveModel updates the model id carried in status snapshots.
func (h *Hub) SetActiveModel(model string) {
	h.mu.Lock()
	h.model = model
	h.mu.Unlock()
}

// ClearActive detaches the controller once a call ends.
func (h *Hub) ClearActive(reason string) {
	h.mu.Lock()
	h.active = nil
	h.activeCallID = ""
	h.callerID = ""
	h.agentName = ""
	h.model = ""
	snap := h.snapshotLocked()
	h.mu.Unlock()
	h.Publish(EventCallEnded, CallEndedPayload{Reason: reason})
	h.Publish(EventStatus, snap)
}

// ActiveCallID returns the currently active call's ID, or "" if none.
func (h *Hub) ActiveCallID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeCallID
}

func (h *Hub) snapshotLocked() StatusPayload {
	return StatusPayload{
		SIPRegistered:   h.sipRegistered,
		CallActive:      h.active != nil,
		CallerID:        h.callerID,
		ActiveAgent:     h.agentName,
		AvailableAgents: h.availableAgents,
		CurrentModel:    h.model,
	}
}

// Publish broadcasts one event to every connected client without blocking
// the caller: a client whose send buffer is full misses this event, and is
// not disconnected.
func (h *Hub) Publish(t EventType, payload any) {
	ev := Event{Type: t, Payload: payload}
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("dropping dashboard event, client not draining fast enough")
		}
	}
}

// ServeWS upgrades the request to a websocket connection, sends the
// current status snapshot, and runs the client's read/write pumps until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan Event, clientSendBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	snap := h.snapshotLocked()
	h.mu.Unlock()

	select {
	case client.send <- Event{Type: EventStatus, Payload: snap}:
	default:
	}

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.logger.Debug("dashboard client write failed", "error", err)
			return
		}
	}
}

// readPump blocks reading commands from one client until it disconnects,
// at which point it unregisters the client and closes its send channel
// (ending writePump).
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
	}()

	for {
		var cmd commandMessage
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		h.handleCommand(cmd)
	}
}

func (h *Hub) handleCommand(cmd commandMessage) {
	h.mu.Lock()
	active := h.active
	h.mu.Unlock()
	if active == nil {
		h.logger.Debug("dashboard command ignored, no active call", "type", cmd.Type)
		return
	}

	switch cmd.Type {
	case commandHangup:
		active.Hangup()
	case commandMuteAI:
		active.MuteAI()
	case commandUnmuteAI:
		active.UnmuteAI()
	case commandSwitchAgent:
		if err := active.SwitchAgent(cmd.AgentName); err != nil {
			h.logger.Warn("dashboard switch_agent failed", "agent", cmd.AgentName, "error", err)
		}
	default:
		h.logger.Warn("unknown dashboard command", "type", cmd.Type)
	}
}
