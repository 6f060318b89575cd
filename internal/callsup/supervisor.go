// Package callsup implements the per-call supervisor: it wires the SIP
// media termination, the realtime AI session, and the agent manager
// together for exactly one call, publishing dashboard events and tearing
// everything down deterministically at hangup.
package callsup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/callgate/callgate/internal/agent"
	"github.com/callgate/callgate/internal/aisession"
	"github.com/callgate/callgate/internal/audio"
	"github.com/callgate/callgate/internal/config"
	"github.com/callgate/callgate/internal/dashboard"
	"github.com/callgate/callgate/internal/database"
	"github.com/callgate/callgate/internal/database/models"
	"github.com/callgate/callgate/internal/media"
)

// rx16Capacity matches the post-resample queue depth the SIP adapter sizes
// its own pre-resample RX queue at (internal/sip/adapter.go's
// rxQueueCapacity); the resample step is 1:1 on frame count.
const rx16Capacity = 50

// gateInactivityTimeout is how long the security gate waits for caller
// speech before giving up and hanging up.
const gateInactivityTimeout = 15 * time.Second

// Options bundles a Supervisor's per-call construction parameters.
type Options struct {
	CallID       string
	CallerIDName string
	CallerIDNum  string

	Config    *config.Config
	Manager   *agent.Manager
	Prices    aisession.PriceTable
	Calls     database.CallRepository
	Hub       *dashboard.Hub
	SIPHangup sipHangup
	LogSink   *callLogHandler
}

// Supervisor owns every mutable piece of state for one call's lifetime: the
// agent manager, the AI session, the running transcript and cost, and the
// gate inactivity watchdog. One Supervisor per call, discarded at teardown;
// nothing in here is ever shared across calls.
type Supervisor struct {
	callID       string
	callerIDName string
	callerIDNum  string

	cfg     *config.Config
	manager *agent.Manager
	prices  aisession.PriceTable
	calls   database.CallRepository
	hub     *dashboard.Hub
	hangup  sipHangup
	logSink *callLogHandler
	logger  *slog.Logger

	term *media.Termination

	mu           sync.Mutex
	session      *aisession.AISession
	rx16         *audio.FrameQueue
	gateTimer    *time.Timer
	currentAgent string
	transcript   []models.TranscriptLine
	costCents    float64
	forcedCause  string
	startedAt    time.Time
	callRecord   *models.Call
}

// NewSupervisor builds a supervisor for one call. Run must be called
// exactly once.
func NewSupervisor(opts Options, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		callID:       opts.CallID,
		callerIDName: opts.CallerIDName,
		callerIDNum:  opts.CallerIDNum,
		cfg:          opts.Config,
		manager:      opts.Manager,
		prices:       opts.Prices,
		calls:        opts.Calls,
		hub:          opts.Hub,
		hangup:       opts.SIPHangup,
		logSink:      opts.LogSink,
		logger:       logger,
	}
}

// Run drives the call: RX resample pipeline, the AI session, and the
// downlink event loop that translates AI session events and tool
// directives into dashboard events and media/session side effects. It
// blocks until the call ends and returns the hangup cause to record.
func (s *Supervisor) Run(ctx context.Context, term *media.Termination) (hangupCause string) {
	s.term = term
	s.startedAt = time.Now()
	s.persistInitialCallRecord(ctx)

	rx16 := audio.NewFrameQueue(rx16Capacity, "rx-16k", s.logger)
	s.mu.Lock()
	s.rx16 = rx16
	s.mu.Unlock()

	rxDone := make(chan struct{})
	go s.runRXPipeline(term, rx16, rxDone)

	active := s.manager.Active()
	s.mu.Lock()
	s.currentAgent = active.Name
	s.mu.Unlock()
	model := s.resolveModel(active)

	session := aisession.New(aisession.Options{
		URL:        s.cfg.AIBaseURL,
		APIKey:     s.cfg.AIAPIKey,
		Model:      model,
		Config:     s.buildConfig(active),
		Dispatcher: s.manager,
		Prices:     s.prices,
		RX:         rx16,
	}, s.logger)

	if err := session.Start(ctx); err != nil {
		s.logger.Error("starting ai session", "error", err)
		rx16.Close()
		<-rxDone
		s.finalize("ai_session_start_failed")
		return "ai_session_start_failed"
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.hub.SetActiveModel(model)

	if active.IsGate() {
		s.mu.Lock()
		s.gateTimer = time.AfterFunc(gateInactivityTimeout, s.onGateInactivityTimeout)
		s.mu.Unlock()
	} else if active.Greeting != "" {
		if err := session.Greet(); err != nil {
			s.logger.Warn("sending initial greeting", "error", err)
		}
	}

	s.hub.Publish(dashboard.EventAIState, dashboard.AIStatePayload{State: "listening"})

	reframer := audio.NewReframer(audio.Rate24k)
	var assistantText strings.Builder
	speaking := false

eventLoop:
	for {
		select {
		case <-ctx.Done():
			hangupCause = s.readForcedCause("caller_hangup")
			break eventLoop

		case ev, ok := <-session.Events():
			if !ok {
				hangupCause = s.readForcedCause("ai_session_closed")
				break eventLoop
			}

			switch ev.Kind {
			case aisession.EventResponseCreated:
				s.hub.Publish(dashboard.EventAIState, dashboard.AIStatePayload{State: "thinking"})

			case aisession.EventAudioDelta:
				if !speaking {
					speaking = true
					s.hub.Publish(dashboard.EventAIState, dashboard.AIStatePayload{State: "speaking"})
				}
				for _, f := range reframer.Push(ev.Samples) {
					f48, err := audio.Resample(f, audio.Rate48k)
					if err != nil {
						s.logger.Debug("resampling tx frame", "error", err)
						continue
					}
					term.TX().Push(f48)
				}

			case aisession.EventTranscriptDelta:
				assistantText.WriteString(ev.Text)
				s.hub.Publish(dashboard.EventTranscript, dashboard.TranscriptPayload{Role: "assistant", Text: ev.Text, IsFinal: false})

			case aisession.EventCallerTranscript:
				s.appendTranscript("user", ev.Text)
				s.hub.Publish(dashboard.EventTranscript, dashboard.TranscriptPayload{Role: "user", Text: ev.Text, IsFinal: true})

			case aisession.EventFunctionCall:
				s.hub.Publish(dashboard.EventFunctionCall, dashboard.FunctionCallPayload{Name: ev.Name, Args: ev.Args})

			case aisession.EventFunctionResult:
				s.hub.Publish(dashboard.EventFunctionResult, dashboard.FunctionResultPayload{Name: ev.Name, Result: ev.Result})
				if s.handleDirective(ctx, ev.Directive) {
					hangupCause = s.readForcedCause("hangup_tool")
					break eventLoop
				}

			case aisession.EventSpeechStarted:
				term.TX().Clear()
				reframer.Reset()
				speaking = false
				s.resetGateTimer()
				s.hub.Publish(dashboard.EventAIState, dashboard.AIStatePayload{State: "user_speaking"})

			case aisession.EventResponseDone:
				speaking = false
				if assistantText.Len() > 0 {
					s.appendTranscript("assistant", assistantText.String())
					assistantText.Reset()
				}
				s.addCost(ev.CostDeltaCents)
				s.hub.Publish(dashboard.EventCallCost, dashboard.CallCostPayload{CostCents: s.CostCents()})
				s.hub.Publish(dashboard.EventAIState, dashboard.AIStatePayload{State: "idle"})

			case aisession.EventError:
				s.logger.Error("ai session error", "message", ev.Message)
				s.setForcedCause("ai_session_error")
				s.hangup.Hangup(s.callID)
				hangupCause = "ai_session_error"
				break eventLoop
			}
		}
	}

	s.stopGateTimer()
	term.RX().Close()
	<-rxDone
	rx16.Close()
	session.Stop()

	s.finalize(hangupCause)
	return hangupCause
}

// runRXPipeline drains 48kHz frames decoded from RTP, resamples each to
// 16kHz, and pushes the result onto rx16 for the AI session's uplink loop.
// Closing term.RX() (done by Run at teardown, ahead of the SIP adapter's
// own term.Stop()) is what ends this loop; the adapter's later Close is a
// harmless no-op on an already-closed queue.
func (s *Supervisor) runRXPipeline(term *media.Termination, rx16 *audio.FrameQueue, done chan struct{}) {
	defer close(done)
	for {
		frame, ok := term.RX().Pop()
		if !ok {
			return
		}
		f16, err := audio.Resample(frame, audio.Rate16k)
		if err != nil {
			s.logger.Debug("resampling rx frame", "error", err)
			continue
		}
		rx16.Push(f16)
	}
}

// handleDirective acts on a parsed tool-call directive, returning true if
// the call should now hang up.
func (s *Supervisor) handleDirective(ctx context.Context, d agent.Directive) bool {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	switch d.Kind {
	case agent.DirectiveSwitch:
		if sess != nil {
			s.reconfigure(ctx, sess, d.Target, "tool")
		}
		return false

	case agent.DirectiveBeep:
		s.queueBeep()
		if sess != nil {
			sess.Mute()
			sess.UnmuteAfterNextResponse()
		}
		return false

	case agent.DirectiveHangup:
		s.setForcedCause("hangup_tool")
		s.hangup.Hangup(s.callID)
		return true

	case agent.DirectiveModelSwitch:
		if sess != nil {
			modelID := s.modelIDForTier(d.Model)
			oldModel := sess.Model()
			if modelID != oldModel {
				cfg := s.buildConfig(s.manager.Active())
				if err := sess.SwitchModelLive(ctx, modelID, cfg); err != nil {
					s.logger.Error("switching model live", "error", err, "model", modelID)
				} else {
					s.hub.SetActiveModel(modelID)
					s.hub.Publish(dashboard.EventModelChanged, dashboard.ModelChangedPayload{Model: modelID})
				}
			}
		}
		return false

	default:
		return false
	}
}

// reconfigure re-sends session.update (or reconnects, if the model tier
// changes) after an agent switch, used both by tool-driven switches and by
// a dashboard-originated switch_agent command.
func (s *Supervisor) reconfigure(ctx context.Context, sess *aisession.AISession, target agent.Descriptor, source string) {
	s.mu.Lock()
	oldAgent := s.currentAgent
	s.currentAgent = target.Name
	s.mu.Unlock()

	cfg := s.buildConfig(target)
	newModel := s.resolveModel(target)
	oldModel := sess.Model()

	var err error
	if newModel != oldModel {
		err = sess.SwitchModelLive(ctx, newModel, cfg)
	} else {
		err = sess.UpdateConfig(cfg)
	}
	if err != nil {
		s.logger.Error("reconfiguring ai session after agent switch", "error", err, "target", target.Name, "source", source)
		return
	}

	s.hub.SetActiveAgent(target.Name)
	s.hub.Publish(dashboard.EventAgentChanged, dashboard.AgentChangedPayload{OldAgent: oldAgent, NewAgent: target.Name})
	if newModel != oldModel {
		s.hub.SetActiveModel(newModel)
		s.hub.Publish(dashboard.EventModelChanged, dashboard.ModelChangedPayload{Model: newModel})
	}
	if !target.IsGate() {
		s.stopGateTimer()
	}
	if target.Greeting != "" {
		if err := sess.Greet(); err != nil {
			s.logger.Warn("sending greeting after switch", "error", err, "target", target.Name)
		}
	}
}

// queueBeep reframes the cached 800Hz/150ms beep tone into 20ms/48kHz
// frames and pushes them onto the TX queue, heard by the caller while the
// AI is muted.
func (s *Supervisor) queueBeep() {
	beep := audio.Beep(audio.Rate48k)
	r := audio.NewReframer(audio.Rate48k)
	for _, f := range r.Push(beep.Samples) {
		s.term.TX().Push(f)
	}
}

// buildConfig projects an agent descriptor into the aisession.Config shape
// the realtime API's session.update expects.
func (s *Supervisor) buildConfig(d agent.Descriptor) aisession.Config {
	return aisession.Config{Voice: d.Voice, Instructions: d.Instructions, Tools: d.ToolSchemas()}
}

// resolveModel maps a descriptor's preferred tier onto a concrete model id.
// Descriptors with no preference (including the security gate) default to
// the cheaper mini model.
func (s *Supervisor) resolveModel(d agent.Descriptor) string {
	return s.modelIDForTier(d.PreferredModel)
}

func (s *Supervisor) modelIDForTier(tier agent.ModelTier) string {
	if tier == agent.ModelPremium {
		return s.cfg.AIMainModel
	}
	return s.cfg.AIMiniModel
}

func (s *Supervisor) onGateInactivityTimeout() {
	if s.manager.Unlocked() {
		return
	}
	s.logger.Info("gate inactivity timeout, hanging up", "call_id", s.callID)
	s.setForcedCause("gate_timeout")
	s.hangup.Hangup(s.callID)
}

func (s *Supervisor) resetGateTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gateTimer != nil {
		s.gateTimer.Reset(gateInactivityTimeout)
	}
}

func (s *Supervisor) stopGateTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gateTimer != nil {
		s.gateTimer.Stop()
		s.gateTimer = nil
	}
}

func (s *Supervisor) setForcedCause(cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forcedCause == "" {
		s.forcedCause = cause
	}
}

func (s *Supervisor) readForcedCause(fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forcedCause != "" {
		return s.forcedCause
	}
	return fallback
}

func (s *Supervisor) appendTranscript(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, models.TranscriptLine{Role: role, Text: text})
}

func (s *Supervisor) addCost(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.costCents += delta
}

// CostCents returns the running cost total accrued so far this call.
func (s *Supervisor) CostCents() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.costCents
}

func (s *Supervisor) persistInitialCallRecord(ctx context.Context) {
	rec := &models.Call{
		CallID:       s.callID,
		CallerIDName: s.callerIDName,
		CallerIDNum:  s.callerIDNum,
		StartedAt:    s.startedAt,
		Transcript:   "[]",
		Logs:         "",
	}
	if err := s.calls.Create(ctx, rec); err != nil {
		s.logger.Error("creating call record", "error", err)
		return
	}
	s.mu.Lock()
	s.callRecord = rec
	s.mu.Unlock()
}

// finalize persists the completed Call record: duration, final cost,
// final agent, hangup cause, transcript, and captured log lines.
func (s *Supervisor) finalize(cause string) {
	if sess := s.session; sess != nil && sess.ResponseInProgress() {
		s.logger.Warn("finalizing call with response_in_progress still set", "call_id", s.callID)
	}

	s.hub.Publish(dashboard.EventAIState, dashboard.AIStatePayload{State: "idle"})

	endedAt := time.Now()
	durationS := int(endedAt.Sub(s.startedAt).Seconds())

	s.mu.Lock()
	transcript := append([]models.TranscriptLine(nil), s.transcript...)
	cost := s.costCents
	finalAgent := s.currentAgent
	rec := s.callRecord
	s.mu.Unlock()

	unlocked := s.manager.Unlocked()

	transcriptJSON, err := json.Marshal(transcript)
	if err != nil {
		s.logger.Error("marshaling transcript", "error", err)
		transcriptJSON = []byte("[]")
	}

	if rec == nil {
		s.logger.Warn("no call record to finalize", "call_id", s.callID)
		return
	}

	rec.EndedAt = &endedAt
	rec.DurationS = &durationS
	rec.Unlocked = unlocked
	rec.FinalAgent = finalAgent
	rec.CostCents = cost
	rec.HangupCause = cause
	rec.Transcript = string(transcriptJSON)
	if s.logSink != nil {
		rec.Logs = s.logSink.String()
	}

	if err := s.calls.Update(context.Background(), rec); err != nil {
		s.logger.Error("persisting call record", "error", err)
	}

	s.logger.Info("call finalized", "cause", cause, "duration_s", durationS, "cost_cents", cost, "final_agent", finalAgent)
}

// Hangup implements dashboard.CallController: an operator-initiated hangup.
func (s *Supervisor) Hangup() {
	s.setForcedCause("dashboard_hangup")
	s.hangup.Hangup(s.callID)
}

// MuteAI implements dashboard.CallController.
func (s *Supervisor) MuteAI() {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil {
		sess.Mute()
	}
}

// UnmuteAI implements dashboard.CallController.
func (s *Supervisor) UnmuteAI() {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess != nil {
		sess.Unmute()
	}
}

// SwitchAgent implements dashboard.CallController: an operator-initiated
// agent switch, applying the same reconfiguration path a tool-driven
// switch uses.
func (s *Supervisor) SwitchAgent(name string) error {
	target, err := s.manager.SwitchCommand(name)
	if err != nil {
		return fmt.Errorf("dashboard switch_agent: %w", err)
	}
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("dashboard switch_agent: no active ai session")
	}
	s.reconfigure(context.Background(), sess, target, "dashboard")
	return nil
}
