package audio

import "testing"

func TestBeepShapeAndCaching(t *testing.T) {
	f := Beep(Rate48k)
	wantLen := int(Rate48k) * 150 / 1000
	if len(f.Samples) != wantLen {
		t.Fatalf("beep length = %d, want %d", len(f.Samples), wantLen)
	}
	if f.Rate != Rate48k {
		t.Fatalf("beep rate = %v, want %v", f.Rate, Rate48k)
	}

	f2 := Beep(Rate48k)
	f2.Samples[0] = 9999
	if f.Samples[0] == 9999 {
		t.Fatalf("Beep() must return a copy, not the shared cache backing array")
	}
}

func TestToneClipsWithinInt16Range(t *testing.T) {
	f := Tone(800, 150, Rate8k)
	for _, s := range f.Samples {
		if s > 32767 || s < -32768 {
			t.Fatalf("sample out of range: %d", s)
		}
	}
}

func TestSilenceMSIsAllZero(t *testing.T) {
	f := SilenceMS(20, Rate16k)
	for i, s := range f.Samples {
		if s != 0 {
			t.Fatalf("sample %d non-zero: %d", i, s)
		}
	}
	if len(f.Samples) != Rate16k.SamplesPerFrame() {
		t.Fatalf("20ms at 16k should equal one frame, got %d samples", len(f.Samples))
	}
}
