package dashboard

import (
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeController struct {
	hangups  int
	mutes    int
	unmutes  int
	switched []string
}

func (f *fakeController) Hangup()   { f.hangups++ }
func (f *fakeController) MuteAI()   { f.mutes++ }
func (f *fakeController) UnmuteAI() { f.unmutes++ }
func (f *fakeController) SwitchAgent(name string) error {
	f.switched = append(f.switched, name)
	return nil
}

func TestTasksEmptyWithoutActiveCall(t *testing.T) {
	h := NewHub(testLogger())
	if got := h.Tasks(); len(got) != 0 {
		t.Fatalf("expected no tasks, got %d", len(got))
	}
}

func TestTasksReflectActiveCall(t *testing.T) {
	h := NewHub(testLogger())
	ctrl := &fakeController{}
	h.SetActive(ctrl, "call-1", "+4915901969502", "security_gate")

	tasks := h.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
	if tasks[0].ID != "call-1" || tasks[0].CallerID != "+4915901969502" || tasks[0].Agent != "security_gate" {
		t.Errorf("unexpected task: %+v", tasks[0])
	}

	h.ClearActive("caller_hangup")
	if got := h.Tasks(); len(got) != 0 {
		t.Fatalf("expected no tasks after ClearActive, got %d", len(got))
	}
}

func TestCancelTask(t *testing.T) {
	h := NewHub(testLogger())
	ctrl := &fakeController{}
	h.SetActive(ctrl, "call-1", "+49123", "main_agent")

	if h.CancelTask("no-such-call") {
		t.Error("cancel of unknown id should return false")
	}
	if ctrl.hangups != 0 {
		t.Errorf("unknown id must not hang up, got %d hangups", ctrl.hangups)
	}

	if !h.CancelTask("call-1") {
		t.Error("cancel of the active call should return true")
	}
	if ctrl.hangups != 1 {
		t.Errorf("expected one hangup, got %d", ctrl.hangups)
	}
}

func TestHandleCommandRoutesToController(t *testing.T) {
	h := NewHub(testLogger())
	ctrl := &fakeController{}
	h.SetActive(ctrl, "call-1", "+49123", "main_agent")

	h.handleCommand(commandMessage{Type: commandHangup})
	h.handleCommand(commandMessage{Type: commandMuteAI})
	h.handleCommand(commandMessage{Type: commandUnmuteAI})
	h.handleCommand(commandMessage{Type: commandSwitchAgent, AgentName: "research"})

	if ctrl.hangups != 1 || ctrl.mutes != 1 || ctrl.unmutes != 1 {
		t.Errorf("command counts: hangup=%d mute=%d unmute=%d", ctrl.hangups, ctrl.mutes, ctrl.unmutes)
	}
	if len(ctrl.switched) != 1 || ctrl.switched[0] != "research" {
		t.Errorf("switch_agent not routed: %v", ctrl.switched)
	}
}

func TestHandleCommandIgnoredWithoutActiveCall(t *testing.T) {
	h := NewHub(testLogger())
	// Must not panic with no controller attached.
	h.handleCommand(commandMessage{Type: commandHangup})
}

func TestStatusSnapshot(t *testing.T) {
	h := NewHub(testLogger())
	h.SetAvailableAgents([]string{"main_agent", "research"})
	h.SetRegistered(true)
	h.SetActive(&fakeController{}, "call-1", "+49123", "security_gate")
	h.SetActiveAgent("main_agent")
	h.SetActiveModel("rt-mini")

	h.mu.Lock()
	snap := h.snapshotLocked()
	h.mu.Unlock()

	if !snap.SIPRegistered || !snap.CallActive {
		t.Errorf("snapshot flags wrong: %+v", snap)
	}
	if snap.ActiveAgent != "main_agent" || snap.CurrentModel != "rt-mini" || snap.CallerID != "+49123" {
		t.Errorf("snapshot state wrong: %+v", snap)
	}
	if len(snap.AvailableAgents) != 2 {
		t.Errorf("snapshot agents wrong: %v", snap.AvailableAgents)
	}
}

func TestPublishWithSlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(testLogger())

	// A client that never drains: its buffer fills, then further publishes
	// must drop rather than block the broadcaster.
	c := &wsClient{send: make(chan Event, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	for i := 0; i < clientSendBuffer*2; i++ {
		h.Publish(EventCallCost, CallCostPayload{CostCents: float64(i)})
	}

	if got := len(c.send); got != clientSendBuffer {
		t.Errorf("expected exactly %d buffered events, got %d", clientSendBuffer, got)
	}
}
