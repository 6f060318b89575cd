package media

import "testing"

func TestUlawRoundTrip(t *testing.T) {
	enc := ulawEncoder{}
	dec := ulawDecoder{}
	samples := []int16{0, 100, -100, 32000, -32000, 1}
	encoded, err := enc.Encode(samples)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := dec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, s := range samples {
		diff := int(decoded[i]) - int(s)
		if diff < 0 {
			diff = -diff
		}
		if diff > 512 {
			t.Errorf("sample %d: got %d, want near %d", i, decoded[i], s)
		}
	}
}

func TestAlawRoundTrip(t *testing.T) {
	enc := alawEncoder{}
	dec := alawDecoder{}
	samples := []int16{0, 100, -100, 32000, -32000, 1}
	encoded, err := enc.Encode(samples)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := dec.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, s := range samples {
		diff := int(decoded[i]) - int(s)
		if diff < 0 {
			diff = -diff
		}
		if diff > 512 {
			t.Errorf("sample %d: got %d, want near %d", i, decoded[i], s)
		}
	}
}

func TestNegotiateAnswerPrefersOpus(t *testing.T) {
	remote := &SessionDescription{
		Media: []MediaDescription{
			{
				Type: "audio",
				Codecs: []Codec{
					{PayloadType: 0, Name: "PCMU", ClockRate: 8000},
					{PayloadType: 111, Name: "opus", ClockRate: 48000, Channels: 2},
				},
			},
		},
	}
	nc, ok := NegotiateAnswer(remote)
	if !ok {
		t.Fatal("expected negotiation to succeed")
	}
	if nc.Name != CodecOpus {
		t.Errorf("expected opus preferred over PCMU, got %s", nc.Name)
	}
}

func TestNegotiateAnswerFallsBackToPCMA(t *testing.T) {
	remote := &SessionDescription{
		Media: []MediaDescription{
			{
				Type: "audio",
				Codecs: []Codec{
					{PayloadType: 8, Name: "PCMA", ClockRate: 8000},
				},
			},
		},
	}
	nc, ok := NegotiateAnswer(remote)
	if !ok {
		t.Fatal("expected negotiation to succeed")
	}
	if nc.Name != CodecPCMA {
		t.Errorf("expected PCMA, got %s", nc.Name)
	}
}

func TestNegotiateAnswerNoMatchingCodec(t *testing.T) {
	remote := &SessionDescription{
		Media: []MediaDescription{
			{
				Type: "audio",
				Codecs: []Codec{
					{PayloadType: 99, Name: "G729", ClockRate: 8000},
				},
			},
		},
	}
	if _, ok := NegotiateAnswer(remote); ok {
		t.Fatal("expected negotiation to fail for unsupported codec")
	}
}
