package aisession

import "github.com/callgate/callgate/internal/agent"

// EventKind identifies which downlink realtime-API event produced an Event,
// plus two session-internal notifications (EventFunctionCall/
// EventFunctionResult) the session synthesizes around its own tool dispatch
// so the supervisor can publish dashboard events and act on sentinel side
// effects without re-parsing the wire protocol itself.
type EventKind string

const (
	EventResponseCreated  EventKind = "response_created"
	EventAudioDelta       EventKind = "audio_delta"
	EventTranscriptDelta  EventKind = "transcript_delta"
	EventCallerTranscript EventKind = "caller_transcript"
	EventFunctionCall     EventKind = "function_call"
	EventFunctionResult   EventKind = "function_result"
	EventSpeechStarted    EventKind = "speech_started"
	EventResponseDone     EventKind = "response_done"
	EventError            EventKind = "error"
)

// Event is the supervisor-facing projection of one downlink message. Only
// the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// EventAudioDelta: 24kHz PCM16 samples decoded from the wire delta.
	Samples []int16

	// EventTranscriptDelta / EventCallerTranscript
	Text    string
	IsFinal bool

	// EventFunctionCall / EventFunctionResult
	Name   string
	Args   string
	Result string
	// Directive is populated on EventFunctionResult: the parsed sentinel
	// outcome the supervisor must act on (switch/beep/hangup/model-switch),
	// per the design principle "never propagate the raw string past the agent
	// manager" -- the session hands the supervisor the already-tagged
	// variant, not text.
	Directive agent.Directive

	// EventResponseDone
	CostDeltaCents float64

	// EventError
	Message string
}

// wireEvent mirrors the realtime API's downlink JSON event envelope. Only
// the fields this session actually consumes are modeled; every other field
// in a real event is ignored by json.Unmarshal.
type wireEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`

	Transcript string `json:"transcript"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`

	Response *wireResponse    `json:"response"`
	Error    *wireErrorDetail `json:"error"`
}

type wireResponse struct {
	Usage *wireUsage `json:"usage"`
}

func (r *wireResponse) usage() *wireUsage {
	if r == nil {
		return nil
	}
	return r.Usage
}

// wireErrorDetail is the nested error object inside an "error" event.
type wireErrorDetail struct {
	Message string `json:"message"`
}

type wireUsage struct {
	InputTokenDetails *struct {
		AudioTokens int `json:"audio_tokens"`
	} `json:"input_token_details"`
	OutputTokenDetails *struct {
		AudioTokens int `json:"audio_tokens"`
	} `json:"output_token_details"`
}

func (u *wireUsage) audioTokens() (input, output int) {
	if u == nil {
		return 0, 0
	}
	if u.InputTokenDetails != nil {
		input = u.InputTokenDetails.AudioTokens
	}
	if u.OutputTokenDetails != nil {
		output = u.OutputTokenDetails.AudioTokens
	}
	return input, output
}

// Downlink event type strings event table.
const (
	wireResponseCreated      = "response.created"
	wireAudioDelta           = "response.audio.delta"
	wireTranscriptDelta      = "response.audio_transcript.delta"
	wireCallerTranscriptDone = "conversation.item.input_audio_transcription.completed"
	wireFunctionCallArgsDone = "response.function_call_arguments.done"
	wireSpeechStarted        = "input_audio_buffer.speech_started"
	wireResponseDone         = "response.done"
	wireErrorEventType       = "error"

	errAlreadyHasActiveMessage = "already has an active response"
)
