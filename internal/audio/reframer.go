package audio

// Reframer accumulates arbitrary-length int16 PCM into fixed 20ms frames at
// a single rate, carrying the tail of a partial frame across calls so a
// caller feeding odd-sized chunks (as the AI session's audio deltas do)
// never drops samples at a chunk boundary.
type Reframer struct {
	rate Rate
	tail []int16
	seq  uint64
}

// NewReframer creates a reframer for the given rate.
func NewReframer(rate Rate) *Reframer {
	return &Reframer{rate: rate}
}

// Push appends samples and returns zero or more complete frames. Any
// remainder shorter than a full frame is retained for the next call.
func (r *Reframer) Push(samples []int16) []Frame {
	r.tail = append(r.tail, samples...)

	perFrame := r.rate.SamplesPerFrame()
	var frames []Frame
	for len(r.tail) >= perFrame {
		buf := make([]int16, perFrame)
		copy(buf, r.tail[:perFrame])
		r.tail = r.tail[perFrame:]
		r.seq++
		frames = append(frames, Frame{Samples: buf, Rate: r.rate, Seq: r.seq})
	}
	return frames
}

// Reset discards any buffered tail, used when a call or session restarts.
func (r *Reframer) Reset() {
	r.tail = r.tail[:0]
}
