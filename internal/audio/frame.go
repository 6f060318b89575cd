// Package audio provides fixed-size 20ms PCM16 frame handling: the sample
// rates used across the call path, resampling between them, a reframing
// ring buffer for arbitrary-length input, silence/tone synthesis, and a
// bounded frame queue with drop-oldest overflow.
package audio

import "fmt"

// Rate is a supported PCM16 sample rate. Every rate in the call path
// carries exactly 20ms of audio per Frame.
type Rate int

const (
	Rate8k  Rate = 8000
	Rate16k Rate = 16000
	Rate24k Rate = 24000
	Rate48k Rate = 48000
)

// frameMs is the fixed frame duration used throughout the call path.
const frameMs = 20

// SamplesPerFrame returns the number of int16 samples in one 20ms frame at
// this rate.
func (r Rate) SamplesPerFrame() int {
	return int(r) * frameMs / 1000
}

func (r Rate) String() string {
	switch r {
	case Rate8k:
		return "8k"
	case Rate16k:
		return "16k"
	case Rate24k:
		return "24k"
	case Rate48k:
		return "48k"
	default:
		return fmt.Sprintf("%dHz", int(r))
	}
}

// Frame is 20ms of mono PCM16 audio at a fixed rate. Callers must not
// mutate Samples after handing a Frame to a channel or queue — a
// concurrent reader may still hold the same slice (Resample returns its
// input frame unchanged when the rates already match). The resampler and
// reframer do not reuse backing arrays: each frame they emit gets a newly
// allocated Samples slice.
type Frame struct {
	Samples []int16
	Rate    Rate
	Seq     uint64
}

// Silence returns a zero-filled frame at the given rate.
func Silence(rate Rate) Frame {
	return Frame{Samples: make([]int16, rate.SamplesPerFrame()), Rate: rate}
}
