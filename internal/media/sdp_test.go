package media

import (
	"strings"
	"testing"
)

// A typical offer from a SIP trunk: PCMU/PCMA/opus/telephone-event, the
// codec mix this bridge actually negotiates against in production.
const testSDPOffer = `v=0
o=trunk 2890844526 2890844526 IN IP4 192.168.1.100
s=PSTN Call
c=IN IP4 192.168.1.100
t=0 0
m=audio 49170 RTP/AVP 0 8 111 101
a=rtpmap:0 PCMU/8000
a=rtpmap:8 PCMA/8000
a=rtpmap:111 opus/48000/2
a=fmtp:111 minptime=10;useinbandfec=1
a=rtpmap:101 telephone-event/8000
a=fmtp:101 0-16
a=sendrecv
`

func TestParseSDP(t *testing.T) {
	sd, err := ParseSDP([]byte(testSDPOffer))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}

	if sd.Version != 0 {
		t.Errorf("version = %d, want 0", sd.Version)
	}
	if sd.Origin.Username != "trunk" {
		t.Errorf("origin username = %q, want %q", sd.Origin.Username, "trunk")
	}
	if sd.Connection == nil || sd.Connection.Address != "192.168.1.100" {
		t.Fatalf("session connection = %+v, want 192.168.1.100", sd.Connection)
	}

	if len(sd.Media) != 1 {
		t.Fatalf("media count = %d, want 1", len(sd.Media))
	}

	m := sd.Media[0]
	if m.Type != "audio" || m.Port != 49170 || m.Proto != "RTP/AVP" {
		t.Errorf("media = %+v", m)
	}
	if len(m.Codecs) != 4 {
		t.Fatalf("codec count = %d, want 4", len(m.Codecs))
	}

	pcmu := m.CodecByPayloadType(0)
	if pcmu == nil || pcmu.Name != "PCMU" || pcmu.ClockRate != 8000 {
		t.Errorf("PCMU = %+v", pcmu)
	}
	pcma := m.CodecByPayloadType(8)
	if pcma == nil || pcma.Name != "PCMA" || pcma.ClockRate != 8000 {
		t.Errorf("PCMA = %+v", pcma)
	}
	opus := m.CodecByPayloadType(111)
	if opus == nil || opus.Name != "opus" || opus.ClockRate != 48000 || opus.Channels != 2 {
		t.Errorf("opus = %+v", opus)
	}
	if opus.Fmtp != "minptime=10;useinbandfec=1" {
		t.Errorf("opus fmtp = %q", opus.Fmtp)
	}
	te := m.CodecByPayloadType(101)
	if te == nil || te.Name != "telephone-event" || te.Fmtp != "0-16" {
		t.Errorf("telephone-event = %+v", te)
	}

	if m.Direction != "sendrecv" {
		t.Errorf("direction = %q, want %q", m.Direction, "sendrecv")
	}
}

func TestParseSDP_CRLF(t *testing.T) {
	sdp := "v=0\r\no=- 1 1 IN IP4 10.0.0.1\r\ns=-\r\nc=IN IP4 10.0.0.1\r\nt=0 0\r\nm=audio 5004 RTP/AVP 0\r\na=rtpmap:0 PCMU/8000\r\n"
	sd, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP with CRLF failed: %v", err)
	}
	if len(sd.Media) != 1 || sd.Media[0].Port != 5004 {
		t.Fatalf("unexpected media: %+v", sd.Media)
	}
}

func TestParseSDP_MediaLevelConnection(t *testing.T) {
	sdp := `v=0
o=- 1 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 5004 RTP/AVP 0
c=IN IP4 172.16.0.5
a=rtpmap:0 PCMU/8000
`
	sd, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}

	if sd.Connection.Address != "10.0.0.1" {
		t.Errorf("session connection = %q, want %q", sd.Connection.Address, "10.0.0.1")
	}

	m := sd.Media[0]
	if m.Connection == nil || m.Connection.Address != "172.16.0.5" {
		t.Fatalf("media connection = %+v", m.Connection)
	}

	// Symmetric RTP learning relies on ConnectionAddress preferring the
	// media-level c= line, which some trunks use to carry a post-NAT
	// address distinct from the session-level one.
	if addr := sd.ConnectionAddress(&m); addr != "172.16.0.5" {
		t.Errorf("ConnectionAddress = %q, want %q", addr, "172.16.0.5")
	}
}

func TestParseSDP_MultipleMedia(t *testing.T) {
	sdp := `v=0
o=- 1 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 5004 RTP/AVP 0
a=rtpmap:0 PCMU/8000
m=video 5006 RTP/AVP 96
a=rtpmap:96 H264/90000
`
	sd, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}
	if len(sd.Media) != 2 {
		t.Fatalf("media count = %d, want 2", len(sd.Media))
	}
	// AudioMedia must pick the audio line even when a phone also offers
	// video; this bridge never negotiates video but still has to parse
	// past it to find the leg it cares about.
	audio := sd.AudioMedia()
	if audio == nil || audio.Port != 5004 {
		t.Fatalf("AudioMedia = %+v, want port 5004", audio)
	}
}

func TestParseSDP_FmtpBeforeRtpmap(t *testing.T) {
	sdp := `v=0
o=- 1 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 5004 RTP/AVP 111
a=fmtp:111 minptime=10
a=rtpmap:111 opus/48000/2
`
	sd, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}
	opus := sd.Media[0].CodecByPayloadType(111)
	if opus == nil || opus.Name != "opus" || opus.Fmtp != "minptime=10" {
		t.Errorf("opus = %+v", opus)
	}
}

func TestParseSDP_Direction(t *testing.T) {
	for _, dir := range []string{"sendrecv", "sendonly", "recvonly", "inactive"} {
		sdp := `v=0
o=- 1 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 5004 RTP/AVP 0
a=rtpmap:0 PCMU/8000
a=` + dir + "\n"

		sd, err := ParseSDP([]byte(sdp))
		if err != nil {
			t.Fatalf("ParseSDP(%q) failed: %v", dir, err)
		}
		if sd.Media[0].Direction != dir {
			t.Errorf("direction for %q = %q", dir, sd.Media[0].Direction)
		}
	}
}

func TestParseSDP_DefaultDirection(t *testing.T) {
	sdp := `v=0
o=- 1 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 5004 RTP/AVP 0
a=rtpmap:0 PCMU/8000
`
	sd, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}
	if sd.Media[0].Direction != "sendrecv" {
		t.Errorf("default direction = %q, want sendrecv", sd.Media[0].Direction)
	}
}

func TestParseSDP_Empty(t *testing.T) {
	if _, err := ParseSDP([]byte("")); err == nil {
		t.Error("expected error for empty SDP")
	}
}

func TestParseSDP_MulticastPortSuffixIgnored(t *testing.T) {
	// A "<port>/<numports>" port field is the multicast form; this bridge
	// only ever binds a single unicast port, so it just drops the suffix
	// rather than tracking a port count nothing downstream uses.
	sdp := `v=0
o=- 1 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 5004/2 RTP/AVP 0
a=rtpmap:0 PCMU/8000
`
	sd, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}
	if sd.Media[0].Port != 5004 {
		t.Errorf("port = %d, want 5004", sd.Media[0].Port)
	}
}

func TestCodecByName(t *testing.T) {
	sd, err := ParseSDP([]byte(testSDPOffer))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}
	m := sd.AudioMedia()

	if c := m.CodecByName("pcmu"); c == nil {
		t.Error("CodecByName(pcmu) returned nil")
	}
	if c := m.CodecByName("PCMU"); c == nil {
		t.Error("CodecByName(PCMU) returned nil")
	}
	if c := m.CodecByName("nonexistent"); c != nil {
		t.Error("CodecByName(nonexistent) should return nil")
	}
	if !m.HasCodec("opus") {
		t.Error("HasCodec(opus) should be true")
	}
	if m.HasCodec("G729") {
		t.Error("HasCodec(G729) should be false")
	}
}

func TestMarshalSDP(t *testing.T) {
	sd, err := ParseSDP([]byte(testSDPOffer))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}

	out := sd.Marshal()
	sd2, err := ParseSDP(out)
	if err != nil {
		t.Fatalf("ParseSDP(marshaled) failed: %v", err)
	}

	if sd2.Version != sd.Version {
		t.Errorf("version mismatch: %d vs %d", sd2.Version, sd.Version)
	}
	if sd2.Connection.Address != sd.Connection.Address {
		t.Errorf("connection address mismatch: %q vs %q", sd2.Connection.Address, sd.Connection.Address)
	}
	if len(sd2.Media) != len(sd.Media) || len(sd2.Media[0].Codecs) != len(sd.Media[0].Codecs) {
		t.Fatalf("media/codec count mismatch")
	}
	if !strings.Contains(string(out), "\r\n") {
		t.Error("marshaled SDP should use CRLF line endings")
	}
}

func TestConnectionString(t *testing.T) {
	c := Connection{NetType: "IN", AddrType: "IP4", Address: "10.0.0.1"}
	if s := c.String(); s != "IN IP4 10.0.0.1" {
		t.Errorf("Connection.String() = %q", s)
	}
}

func TestOriginString(t *testing.T) {
	o := Origin{Username: "trunk", SessionID: "123", SessionVersion: "456", NetType: "IN", AddrType: "IP4", Address: "10.0.0.1"}
	want := "trunk 123 456 IN IP4 10.0.0.1"
	if s := o.String(); s != want {
		t.Errorf("Origin.String() = %q, want %q", s, want)
	}
}

func TestCodecString(t *testing.T) {
	c := Codec{PayloadType: 111, Name: "opus", ClockRate: 48000, Channels: 2}
	if s := c.String(); s != "111 opus/48000/2" {
		t.Errorf("Codec.String() = %q", s)
	}
	c2 := Codec{PayloadType: 0, Name: "PCMU", ClockRate: 8000}
	if s := c2.String(); s != "0 PCMU/8000" {
		t.Errorf("Codec.String() = %q", s)
	}
}

func TestParseSDP_IPv6(t *testing.T) {
	sdp := `v=0
o=- 1 1 IN IP6 2001:db8::1
s=-
c=IN IP6 2001:db8::1
t=0 0
m=audio 5004 RTP/AVP 0
a=rtpmap:0 PCMU/8000
`
	sd, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}
	if sd.Connection.AddrType != "IP6" || sd.Connection.Address != "2001:db8::1" {
		t.Errorf("connection = %+v", sd.Connection)
	}
}

// TestBuildAnswer exercises the adapter's actual codec-negotiation path:
// NegotiateAnswer picks Opus over the trunk's other offered codecs, and
// BuildAnswer advertises only that one codec with the public media IP
// rewritten into c=/o=.
func TestBuildAnswer(t *testing.T) {
	offer, err := ParseSDP([]byte(testSDPOffer))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}

	codec, ok := NegotiateAnswer(offer)
	if !ok {
		t.Fatal("NegotiateAnswer found no common codec")
	}
	if codec.Name != CodecOpus {
		t.Fatalf("negotiated %q, want opus to be preferred", codec.Name)
	}

	answer := BuildAnswer(offer, codec, "203.0.113.5", 20000)

	if answer.Connection == nil || answer.Connection.Address != "203.0.113.5" {
		t.Fatalf("answer connection = %+v, want 203.0.113.5", answer.Connection)
	}
	if answer.Origin.Address != "203.0.113.5" {
		t.Errorf("answer origin address = %q, want %q", answer.Origin.Address, "203.0.113.5")
	}
	if answer.Origin.SessionID != offer.Origin.SessionID {
		t.Errorf("answer should echo the offer's session id, got %q want %q", answer.Origin.SessionID, offer.Origin.SessionID)
	}

	if len(answer.Media) != 1 {
		t.Fatalf("answer media count = %d, want 1", len(answer.Media))
	}
	am := answer.Media[0]
	if am.Port != 20000 {
		t.Errorf("answer port = %d, want 20000", am.Port)
	}
	if len(am.Formats) != 1 || am.Formats[0] != codec.PayloadType {
		t.Errorf("answer should offer exactly the negotiated payload type, got %v", am.Formats)
	}

	// The marshaled answer must round-trip back through ParseSDP with the
	// single negotiated codec intact, since that's what actually goes out
	// on the wire in the 200 OK.
	reparsed, err := ParseSDP(answer.Marshal())
	if err != nil {
		t.Fatalf("ParseSDP(answer.Marshal()) failed: %v", err)
	}
	if !reparsed.AudioMedia().HasCodec(string(codec.Name)) {
		t.Errorf("marshaled answer missing negotiated codec %q", codec.Name)
	}
}

func TestBuildAnswer_FallsBackToPCMA(t *testing.T) {
	sdp := `v=0
o=- 1 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 5004 RTP/AVP 8
a=rtpmap:8 PCMA/8000
`
	offer, err := ParseSDP([]byte(sdp))
	if err != nil {
		t.Fatalf("ParseSDP failed: %v", err)
	}
	codec, ok := NegotiateAnswer(offer)
	if !ok || codec.Name != CodecPCMA {
		t.Fatalf("expected PCMA fallback, got %+v ok=%v", codec, ok)
	}

	answer := BuildAnswer(offer, codec, "203.0.113.5", 30000)
	if answer.Media[0].Formats[0] != PayloadPCMA {
		t.Errorf("answer payload type = %d, want %d", answer.Media[0].Formats[0], PayloadPCMA)
	}
}
