package media

import (
	"fmt"

	"github.com/callgate/callgate/internal/audio"
	"gopkg.in/hraban/opus.v2"
)

// RTP payload types for the codecs this bridge negotiates. Opus is dynamic
// (assigned 111 by local convention); PCMA/PCMU are the static RFC 3551
// assignments.
const (
	PayloadPCMU = 0
	PayloadPCMA = 8
	PayloadOpus = 111

	maxRTPPacket = 1500
	minRTPHeader = 12
)

// CodecName identifies a negotiated audio codec.
type CodecName string

const (
	CodecOpus CodecName = "opus"
	CodecPCMA CodecName = "PCMA"
	CodecPCMU CodecName = "PCMU"
)

// NegotiatedCodec is the result of codec negotiation for one call: the
// chosen codec, its RTP payload type, and its native clock rate.
type NegotiatedCodec struct {
	Name        CodecName
	PayloadType int
	ClockRate   audio.Rate
}

// offerPreference lists codecs in the order the adapter offers and prefers
// them: Opus 48000/2 first, falling back to PCMA 8000 then PCMU 8000.
var offerPreference = []NegotiatedCodec{
	{Name: CodecOpus, PayloadType: PayloadOpus, ClockRate: audio.Rate48k},
	{Name: CodecPCMA, PayloadType: PayloadPCMA, ClockRate: audio.Rate8k},
	{Name: CodecPCMU, PayloadType: PayloadPCMU, ClockRate: audio.Rate8k},
}

// OfferPreference returns the codec list in preference order, for building
// the outbound SDP offer/answer.
func OfferPreference() []NegotiatedCodec {
	out := make([]NegotiatedCodec, len(offerPreference))
	copy(out, offerPreference)
	return out
}

// NegotiateAnswer picks the highest-preference codec present in the
// remote's SDP media description. Returns ok=false if none of our
// preferred codecs are offered, which the caller treats as an unsupported
// codec and rejects with SIP 488.
func NegotiateAnswer(remote *SessionDescription) (NegotiatedCodec, bool) {
	am := remote.AudioMedia()
	if am == nil {
		return NegotiatedCodec{}, false
	}
	for _, pref := range offerPreference {
		if am.CodecByPayloadType(pref.PayloadType) != nil {
			return pref, true
		}
		if c := am.CodecByName(string(pref.Name)); c != nil {
			found := pref
			found.PayloadType = c.PayloadType
			return found, true
		}
	}
	return NegotiatedCodec{}, false
}

// Encoder converts 20ms PCM16 frames at the codec's native rate into RTP
// payload bytes. Decoder does the reverse. Both are stateful per call:
// Opus encoders/decoders carry internal prediction state across frames.
type Encoder interface {
	Encode(samples []int16) ([]byte, error)
}

type Decoder interface {
	Decode(payload []byte) ([]int16, error)
}

// NewEncoder returns an Encoder for the negotiated codec.
func NewEncoder(nc NegotiatedCodec) (Encoder, error) {
	switch nc.Name {
	case CodecPCMA:
		return alawEncoder{}, nil
	case CodecPCMU:
		return ulawEncoder{}, nil
	case CodecOpus:
		enc, err := opus.NewEncoder(int(nc.ClockRate), 1, opus.AppVoIP)
		if err != nil {
			return nil, fmt.Errorf("creating opus encoder: %w", err)
		}
		return &opusEncoder{enc: enc}, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", nc.Name)
	}
}

// NewDecoder returns a Decoder for the negotiated codec.
func NewDecoder(nc NegotiatedCodec) (Decoder, error) {
	switch nc.Name {
	case CodecPCMA:
		return alawDecoder{}, nil
	case CodecPCMU:
		return ulawDecoder{}, nil
	case CodecOpus:
		dec, err := opus.NewDecoder(int(nc.ClockRate), 1)
		if err != nil {
			return nil, fmt.Errorf("creating opus decoder: %w", err)
		}
		return &opusDecoder{dec: dec, rate: int(nc.ClockRate)}, nil
	default:
		return nil, fmt.Errorf("unsupported codec %q", nc.Name)
	}
}

type opusEncoder struct{ enc *opus.Encoder }

func (e *opusEncoder) Encode(samples []int16) ([]byte, error) {
	out := make([]byte, 1275) // max opus frame per RFC 6716
	n, err := e.enc.Encode(samples, out)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return out[:n], nil
}

type opusDecoder struct {
	dec  *opus.Decoder
	rate int
}

func (d *opusDecoder) Decode(payload []byte) ([]int16, error) {
	out := make([]int16, d.rate/1000*20) // 20ms at this rate, mono
	n, err := d.dec.Decode(payload, out)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return out[:n], nil
}

// ulawEncode/ulawDecode and alawEncode/alawDecode implement ITU-T G.711
// companding: fixed bit-manipulation tables defined by the standard.

type ulawEncoder struct{}
type ulawDecoder struct{}
type alawEncoder struct{}
type alawDecoder struct{}

func (ulawEncoder) Encode(samples []int16) ([]byte, error) {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToUlaw(s)
	}
	return out, nil
}

func (ulawDecoder) Decode(payload []byte) ([]int16, error) {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = ulawToLinear(b)
	}
	return out, nil
}

func (alawEncoder) Encode(samples []int16) ([]byte, error) {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToAlaw(s)
	}
	return out, nil
}

func (alawDecoder) Decode(payload []byte) ([]int16, error) {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = alawToLinear(b)
	}
	return out, nil
}

const ulawBias = 0x84
const ulawClip = 32635

func linearToUlaw(sample int16) byte {
	sign := byte(0x00)
	s := int(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias
	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | byte(exponent<<4) | mantissa)
}

func ulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	sample := (int(mantissa)<<3 + ulawBias) << exponent
	sample -= ulawBias
	if sign != 0 {
		sample = -sample
	}
	return int16(sample)
}

func linearToAlaw(sample int16) byte {
	s := int(sample)
	sign := byte(0x80)
	if s < 0 {
		s = -s - 1
		sign = 0x00
	}
	if s > 0x7FFF {
		s = 0x7FFF
	}
	var exponent byte = 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	var mantissa byte
	if exponent == 0 {
		mantissa = byte(s>>4) & 0x0F
	} else {
		mantissa = byte(s>>(int(exponent)+3)) & 0x0F
	}
	alaw := sign | (exponent << 4) | mantissa
	return alaw ^ 0x55
}

func alawToLinear(a byte) int16 {
	a ^= 0x55
	sign := a & 0x80
	exponent := (a >> 4) & 0x07
	mantissa := a & 0x0F
	var sample int
	if exponent == 0 {
		sample = int(mantissa)<<4 + 8
	} else {
		sample = (int(mantissa)<<4 + 0x108) << (exponent - 1)
	}
	if sign == 0 {
		sample = -sample
	}
	return int16(sample)
}
