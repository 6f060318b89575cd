package aisession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callgate/callgate/internal/agent"
	"github.com/callgate/callgate/internal/audio"
)

// functionCallWaitTimeout bounds how long the downlink loop waits for an
// in-flight response to finish before sending a function_call_output anyway.
const functionCallWaitTimeout = 5 * time.Second

// activeResponseBackoff is how long the downlink loop pauses when the
// realtime API rejects a response.create because one is already in
// progress -- a recoverable race rather than a hard error. After the pause
// the loop clears response_in_progress and reads on; the rejected
// response.create is not resent.
const activeResponseBackoff = 250 * time.Millisecond

// ToolDispatcher is the seam into the per-call agent manager. The session
// calls it synchronously from the downlink goroutine for every
// response.function_call_arguments.done event and writes the resulting
// Directive's Text straight back onto the wire as a function_call_output,
// keeping protocol framing in this package and business logic in agent.
type ToolDispatcher interface {
	ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (agent.Directive, error)
}

// AISession is one call's persistent connection to the realtime AI backend:
// two independent loops (uplink audio, downlink events), a
// response_in_progress gate, and model hot-swap support,
// structured on internal/sip/adapter.go's goroutine+WaitGroup+cancel
// lifecycle idiom.
type AISession struct {
	url        string
	apiKey     string
	dispatcher ToolDispatcher
	prices     PriceTable
	logger     *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	model  string
	cfg    Config
	inProg bool

	muted           bool
	unmuteAfterNext bool

	events chan Event
	rx     *audio.FrameQueue // caller audio at 16kHz, pushed by the supervisor

	costCents float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// Options bundles the per-call construction parameters.
type Options struct {
	URL        string // realtime API websocket endpoint
	APIKey     string
	Model      string
	Config     Config
	Dispatcher ToolDispatcher
	Prices     PriceTable
	RX         *audio.FrameQueue // caller audio at 16kHz
}

// New builds a session bound to one call's tool dispatcher and audio queue.
// It does not connect; call Start.
func New(opts Options, logger *slog.Logger) *AISession {
	return &AISession{
		url:        opts.URL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		cfg:        opts.Config,
		dispatcher: opts.Dispatcher,
		prices:     opts.Prices,
		rx:         opts.RX,
		logger:     logger.With("subsystem", "aisession"),
		events:     make(chan Event, 64),
	}
}

// Events returns the channel of downlink notifications for the supervisor
// to consume. Closed once the session fully stops.
func (s *AISession) Events() <-chan Event { return s.events }

// Start connects and launches the uplink/downlink goroutines.
func (s *AISession) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	conn, err := s.dial(ctx)
	if err != nil {
		cancel()
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.sendSessionUpdate(); err != nil {
		cancel()
		conn.Close()
		return fmt.Errorf("sending initial session.update: %w", err)
	}

	s.wg.Add(2)
	go s.uplinkLoop(ctx)
	go s.downlinkLoop(ctx)

	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
	}()

	return nil
}

// Stop cancels both loops, closes the underlying connection, and clears
// response_in_progress. A response can legitimately be in flight when Stop
// is called -- the call hung up mid-response, or the downlink saw
// ai_session_closed -- and the supervisor finalizes the call right after
// Stop returns, so response_in_progress must already read false by then
// rather than leak the stale in-flight state past teardown.
func (s *AISession) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if s.done != nil {
		<-s.done
	}
	s.mu.Lock()
	s.inProg = false
	s.mu.Unlock()
}

// dial connects to the model-specific endpoint URL: the model id is a
// query parameter, so a hot-swap reconnect lands on the new model simply by
// dialing again after s.model changes.
func (s *AISession) dial(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	model := s.model
	s.mu.Unlock()

	endpoint := s.url
	if strings.Contains(endpoint, "?") {
		endpoint += "&model=" + url.QueryEscape(model)
	} else {
		endpoint += "?model=" + url.QueryEscape(model)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dialing realtime endpoint: %w", err)
	}
	return conn, nil
}

func (s *AISession) sendSessionUpdate() error {
	msg := buildSessionUpdate(s.cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProg = false
	return s.conn.WriteJSON(msg)
}

// SwitchModelLive tears down and re-establishes the connection against the
// new model, re-sending session.update with its fresh agent configuration.
// response_in_progress is reset first since nothing is in flight across a
// reconnect.
func (s *AISession) SwitchModelLive(ctx context.Context, model string, cfg Config) error {
	s.mu.Lock()
	old := s.conn
	s.model = model
	s.cfg = cfg
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("reconnecting for model switch: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.sendSessionUpdate(); err != nil {
		conn.Close()
		return fmt.Errorf("re-sending session.update after model switch: %w", err)
	}
	s.logger.Info("model switched live", "model", model)
	return nil
}

// Mute stops enqueuing audio deltas to the caller's TX stream (used while a
// beep tone plays); UnmuteAfterNextResponse schedules an automatic unmute
// once the current response.done arrives.
func (s *AISession) Mute() {
	s.mu.Lock()
	s.muted = true
	s.mu.Unlock()
}

func (s *AISession) UnmuteAfterNextResponse() {
	s.mu.Lock()
	s.unmuteAfterNext = true
	s.mu.Unlock()
}

// Unmute clears the mute flag immediately, used by the dashboard's
// unmute_ai command rather than waiting for the next response.done.
func (s *AISession) Unmute() {
	s.mu.Lock()
	s.muted = false
	s.unmuteAfterNext = false
	s.mu.Unlock()
}

// Interrupt clears response_in_progress and is called when the caller
// starts speaking mid-response (input_audio_buffer.speech_started already
// does this internally; exposed for the supervisor's barge-in handling of
// the TX queue, which it owns).
func (s *AISession) Interrupt() {
	s.mu.Lock()
	s.inProg = false
	s.mu.Unlock()
}

// CostCents returns the running total accrued this call.
func (s *AISession) CostCents() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.costCents
}

// Model returns the currently active model id.
func (s *AISession) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// ResponseInProgress reports whether a response is currently outstanding.
func (s *AISession) ResponseInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProg
}

// UpdateConfig re-sends session.update over the existing connection with a
// new tool/instruction set, used on an agent switch that keeps the current
// model tier. A model-changing switch instead goes through
// SwitchModelLive, which must reconnect.
func (s *AISession) UpdateConfig(cfg Config) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	if err := s.sendSessionUpdate(); err != nil {
		return fmt.Errorf("re-sending session.update after agent switch: %w", err)
	}
	return nil
}

// Greet sends a manual response.create if no response is currently in
// progress, implementing the initial-greeting rule: the security gate
// never greets (it has no Greeting text), and any agent that does is only
// nudged if the server's own VAD hasn't already started a response.
func (s *AISession) Greet() error {
	s.mu.Lock()
	conn := s.conn
	inProg := s.inProg
	s.mu.Unlock()
	if inProg || conn == nil {
		return nil
	}
	if err := conn.WriteJSON(map[string]string{"type": "response.create"}); err != nil {
		return fmt.Errorf("sending greeting response.create: %w", err)
	}
	s.mu.Lock()
	s.inProg = true
	s.mu.Unlock()
	return nil
}

// uplinkLoop drains 16kHz caller audio frames and forwards them as
// input_audio_append messages. Silence frames are sent the same as speech;
// the realtime API's own VAD decides what matters. The supervisor closes
// rx on teardown, which wakes Pop with ok=false and ends the loop; ctx
// cancellation additionally short-circuits the write path.
func (s *AISession) uplinkLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, ok := s.rx.Pop()
		if !ok {
			return
		}
		payload := pcm16ToBase64(frame.Samples)
		msg := map[string]string{
			"type":  "input_audio_append",
			"audio": payload,
		}
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Error("uplink write failed", "error", err)
			return
		}
	}
}

// downlinkLoop reads websocket frames and projects each into an Event,
// driving the response_in_progress state machine and dispatching function
// calls to the agent manager inline.
func (s *AISession) downlinkLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		var raw wireEvent
		if err := conn.ReadJSON(&raw); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Error("downlink read failed", "error", err)
			s.emit(Event{Kind: EventError, Message: err.Error()})
			return
		}

		switch raw.Type {
		case wireResponseCreated:
			s.mu.Lock()
			s.inProg = true
			s.mu.Unlock()
			s.emit(Event{Kind: EventResponseCreated})

		case wireAudioDelta:
			samples, err := base64ToPCM16(raw.Delta)
			if err != nil {
				s.logger.Error("decoding audio delta", "error", err)
				continue
			}
			s.mu.Lock()
			muted := s.muted
			s.mu.Unlock()
			if muted {
				continue
			}
			s.emit(Event{Kind: EventAudioDelta, Samples: samples})

		case wireTranscriptDelta:
			s.emit(Event{Kind: EventTranscriptDelta, Text: raw.Delta})

		case wireCallerTranscriptDone:
			s.emit(Event{Kind: EventCallerTranscript, Text: raw.Transcript, IsFinal: true})

		case wireFunctionCallArgsDone:
			s.handleFunctionCall(ctx, raw.Name, raw.Arguments)

		case wireSpeechStarted:
			s.mu.Lock()
			s.inProg = false
			s.mu.Unlock()
			s.emit(Event{Kind: EventSpeechStarted})

		case wireResponseDone:
			inTok, outTok := raw.Response.usage().audioTokens()
			s.mu.Lock()
			s.inProg = false
			delta := s.prices.CostCents(s.model, inTok, outTok)
			s.costCents += delta
			unmute := s.unmuteAfterNext
			if unmute {
				s.muted = false
				s.unmuteAfterNext = false
			}
			s.mu.Unlock()
			s.emit(Event{Kind: EventResponseDone, CostDeltaCents: delta})

		case wireErrorEventType:
			msg := ""
			if raw.Error != nil {
				msg = raw.Error.Message
			}
			if isActiveResponseRace(msg) {
				s.logger.Debug("active response race, backing off", "message", msg)
				time.Sleep(activeResponseBackoff)
				s.mu.Lock()
				s.inProg = false
				s.mu.Unlock()
				continue
			}
			s.logger.Error("realtime api error", "message", msg)
			s.emit(Event{Kind: EventError, Message: msg})
		}
	}
}

// handleFunctionCall dispatches one completed tool call to the agent
// manager, waits (bounded) for any in-flight response to clear, then writes
// the function_call_output back onto the wire followed by response.create.
func (s *AISession) handleFunctionCall(ctx context.Context, name, argsJSON string) {
	s.emit(Event{Kind: EventFunctionCall, Name: name, Args: argsJSON})

	directive, err := s.dispatcher.ExecuteTool(ctx, name, json.RawMessage(argsJSON))
	if err != nil {
		s.logger.Error("tool dispatch failed", "tool", name, "error", err)
		directive = agent.Directive{Kind: agent.DirectiveReply, Text: "that request could not be completed"}
	}

	result := directiveResultText(directive)

	s.waitForResponseClear(functionCallWaitTimeout)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	output := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":   "function_call_output",
			"output": result,
		},
	}
	if err := conn.WriteJSON(output); err != nil {
		s.logger.Error("writing function_call_output", "error", err)
		return
	}
	if err := conn.WriteJSON(map[string]string{"type": "response.create"}); err != nil {
		s.logger.Error("requesting response after function call", "error", err)
		return
	}
	s.mu.Lock()
	s.inProg = true
	s.mu.Unlock()

	s.emit(Event{Kind: EventFunctionResult, Name: name, Result: result, Directive: directive})
}

// waitForResponseClear polls response_in_progress, giving up after timeout
// rather than blocking the downlink loop indefinitely.
func (s *AISession) waitForResponseClear(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		inProg := s.inProg
		s.mu.Unlock()
		if !inProg {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func (s *AISession) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("dropping aisession event, supervisor not draining fast enough", "kind", ev.Kind)
	}
}

// directiveResultText is the text handed back to the AI as the function
// call's result, distinct from the Directive itself which the supervisor
// acts on separately via EventFunctionResult.
func directiveResultText(d agent.Directive) string {
	switch d.Kind {
	case agent.DirectiveBlocked:
		return d.Text
	case agent.DirectiveSwitch:
		return fmt.Sprintf("switched to %s", d.Target.Name)
	case agent.DirectiveBeep:
		return "incorrect code"
	case agent.DirectiveHangup:
		return "ending call"
	case agent.DirectiveModelSwitch:
		return fmt.Sprintf("switching to %s model", d.Model)
	default:
		return d.Text
	}
}

func isActiveResponseRace(message string) bool {
	return strings.Contains(strings.ToLower(message), errAlreadyHasActiveMessage)
}

func pcm16ToBase64(samples []int16) string {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[2*i] = byte(s)
		buf[2*i+1] = byte(s >> 8)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func base64ToPCM16(s string) ([]int16, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	samples := make([]int16, len(buf)/2)
	for i := range samples {
		samples[i] = int16(buf[2*i]) | int16(buf[2*i+1])<<8
	}
	return samples, nil
}
