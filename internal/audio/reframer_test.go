package audio

import "testing"

func TestReframerIsLengthPreserving(t *testing.T) {
	r := NewReframer(Rate16k)
	perFrame := Rate16k.SamplesPerFrame()

	chunks := [][]int16{
		make([]int16, perFrame/2),
		make([]int16, perFrame),
		make([]int16, perFrame*3/2),
		make([]int16, 1),
	}
	var pushed int
	var emitted int
	for i, c := range chunks {
		for j := range c {
			c[j] = int16(i*1000 + j)
		}
		pushed += len(c)
		frames := r.Push(c)
		for _, f := range frames {
			if len(f.Samples) != perFrame {
				t.Fatalf("frame has %d samples, want %d", len(f.Samples), perFrame)
			}
			emitted += len(f.Samples)
		}
	}

	tailLen := len(r.tail)
	if emitted+tailLen != pushed {
		t.Fatalf("emitted(%d) + tail(%d) = %d, want pushed(%d)", emitted, tailLen, emitted+tailLen, pushed)
	}
}

func TestReframerSequenceIsMonotonic(t *testing.T) {
	r := NewReframer(Rate48k)
	perFrame := Rate48k.SamplesPerFrame()

	var last uint64
	for i := 0; i < 10; i++ {
		frames := r.Push(make([]int16, perFrame))
		for _, f := range frames {
			if f.Seq <= last {
				t.Fatalf("sequence not increasing: %d after %d", f.Seq, last)
			}
			last = f.Seq
		}
	}
}

func TestReframerReset(t *testing.T) {
	r := NewReframer(Rate16k)
	r.Push(make([]int16, 5))
	if len(r.tail) == 0 {
		t.Fatalf("expected a buffered tail before reset")
	}
	r.Reset()
	if len(r.tail) != 0 {
		t.Fatalf("tail not cleared after Reset(), len=%d", len(r.tail))
	}
}
