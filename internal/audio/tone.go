package audio

import "math"

// Tone synthesizes ms milliseconds of a sine wave at freqHz, sampled at
// rate, scaled to roughly half full-scale so the beep is audible over a
// PSTN leg without clipping when summed with DC offset from codec noise.
func Tone(freqHz float64, ms int, rate Rate) Frame {
	n := int(rate) * ms / 1000
	samples := make([]int16, n)
	const amplitude = 16384
	for i := range samples {
		t := float64(i) / float64(rate)
		samples[i] = clampInt16(amplitude * math.Sin(2*math.Pi*freqHz*t))
	}
	return Frame{Samples: samples, Rate: rate}
}

// SilenceMS returns ms milliseconds of zero-filled PCM16 at rate. Unlike
// the Silence(rate) frame helper in frame.go (always one 20ms frame), this
// supports arbitrary durations.
func SilenceMS(ms int, rate Rate) Frame {
	return Frame{Samples: make([]int16, int(rate)*ms/1000), Rate: rate}
}

// beepCache holds the precomputed 800Hz/150ms beep at each rate the call
// path ever needs it at, computed once at startup and cached rather than
// resynthesized on every failed unlock attempt.
var beepCache = map[Rate]Frame{
	Rate8k:  Tone(800, 150, Rate8k),
	Rate16k: Tone(800, 150, Rate16k),
	Rate24k: Tone(800, 150, Rate24k),
	Rate48k: Tone(800, 150, Rate48k),
}

// Beep returns the cached 800Hz/150ms beep tone at rate, used by the call
// supervisor's queueBeep when the agent manager returns a beep directive.
func Beep(rate Rate) Frame {
	f := beepCache[rate]
	out := make([]int16, len(f.Samples))
	copy(out, f.Samples)
	return Frame{Samples: out, Rate: f.Rate}
}
