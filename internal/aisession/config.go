package aisession

import "encoding/json"

// Config is the per-agent configuration sent as the first websocket message
// on connect and again on every agent switch.
type Config struct {
	Voice        string
	Instructions string
	Tools        []json.RawMessage // JSON schema list, one per exposed tool
}

// sessionUpdateMessage is the wire shape of the realtime API's first
// client message: modalities/voice/audio formats/VAD/tools/instructions.
// Audio formats are fixed (16kHz pcm16 in, 24kHz pcm16 out) and never vary
// by agent.
type sessionUpdateMessage struct {
	Type    string               `json:"type"`
	Session sessionUpdatePayload `json:"session"`
}

type sessionUpdatePayload struct {
	Modalities        []string          `json:"modalities"`
	Voice             string            `json:"voice,omitempty"`
	InputAudioFormat  string            `json:"input_audio_format"`
	OutputAudioFormat string            `json:"output_audio_format"`
	TurnDetection     turnDetection     `json:"turn_detection"`
	Tools             []json.RawMessage `json:"tools"`
	Instructions      string            `json:"instructions"`
}

type turnDetection struct {
	Type string `json:"type"`
}

func buildSessionUpdate(cfg Config) sessionUpdateMessage {
	tools := cfg.Tools
	if tools == nil {
		tools = []json.RawMessage{}
	}
	return sessionUpdateMessage{
		Type: "session.update",
		Session: sessionUpdatePayload{
			Modalities:        []string{"text", "audio"},
			Voice:             cfg.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			TurnDetection:     turnDetection{Type: "server_vad"},
			Tools:             tools,
			Instructions:      cfg.Instructions,
		},
	}
}
