// Package media implements the RTP/SDP side of the telephony adapter: SDP
// negotiation, port allocation, and RTP media termination into fixed-size
// 48kHz PCM frames (rather than the relay-between-two-legs a B2BUA does).
package media

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/callgate/callgate/internal/audio"
	"github.com/pion/rtp"
)

// atomicAddr provides thread-safe storage for the learned remote RTP
// address (symmetric RTP: the real post-NAT source may differ from the
// SDP-signaled address).
type atomicAddr struct {
	v atomic.Pointer[net.UDPAddr]
}

func newAtomicAddr(addr *net.UDPAddr) *atomicAddr {
	a := &atomicAddr{}
	a.v.Store(addr)
	return a
}

func (a *atomicAddr) load() *net.UDPAddr { return a.v.Load() }

func (a *atomicAddr) update(addr *net.UDPAddr) bool {
	old := a.v.Load()
	if old != nil && old.IP.Equal(addr.IP) && old.Port == addr.Port {
		return false
	}
	a.v.Store(addr)
	return true
}

// readTimeout bounds each RTP socket read so the RX loop can periodically
// recheck the stopped flag without a dedicated cancellation channel.
const readTimeout = 100 * time.Millisecond

// Termination owns one call's RTP socket and terminates media at the
// negotiated codec: it decodes inbound RTP into 48kHz PCM frames pushed
// onto an RX queue, and encodes frames popped from a TX queue into
// outbound RTP, substituting silence when the TX queue starves so the
// media port never misses its 20ms NAT keepalive.
type Termination struct {
	session *Session
	codec   NegotiatedCodec
	remote  *atomicAddr
	logger  *slog.Logger

	encoder Encoder
	decoder Decoder

	rx *audio.FrameQueue // decoded 48kHz frames, consumed by the supervisor
	tx *audio.FrameQueue // 48kHz frames to send, filled by the supervisor

	seq  uint16
	ts   uint32
	ssrc uint32

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewTermination creates a termination endpoint for session using the
// negotiated codec, with the given remote RTP address learned from SDP.
// rxCapacity/txCapacity size the frame queues: the post-resample RX-16k
// queue (50 frames) is owned by the caller, and this queue holds 48kHz
// pre-resample frames at the same depth.
func NewTermination(session *Session, codec NegotiatedCodec, remote *net.UDPAddr, rxCapacity, txCapacity int, logger *slog.Logger) (*Termination, error) {
	enc, err := NewEncoder(codec)
	if err != nil {
		return nil, err
	}
	dec, err := NewDecoder(codec)
	if err != nil {
		return nil, err
	}
	l := logger.With("subsystem", "media-termination", "session_id", session.ID)
	return &Termination{
		session: session,
		codec:   codec,
		remote:  newAtomicAddr(remote),
		logger:  l,
		encoder: enc,
		decoder: dec,
		rx:      audio.NewFrameQueue(rxCapacity, "rtp-rx", l),
		tx:      audio.NewFrameQueue(txCapacity, "rtp-tx", l),
		ssrc:    uint32(time.Now().UnixNano()),
	}, nil
}

// RX returns the queue of inbound frames resampled to 48kHz as they arrive.
func (t *Termination) RX() *audio.FrameQueue { return t.rx }

// TX returns the queue the supervisor fills with outbound 48kHz frames.
func (t *Termination) TX() *audio.FrameQueue { return t.tx }

// RemoteAddr returns the current (possibly symmetric-RTP-learned) remote
// address.
func (t *Termination) RemoteAddr() *net.UDPAddr { return t.remote.load() }

// Start begins the RX and TX loops in background goroutines. Non-blocking.
func (t *Termination) Start() {
	t.session.SetState(SessionStateActive)
	t.wg.Add(2)
	go t.rxLoop()
	go t.txLoop()
	t.logger.Info("rtp termination started", "codec", t.codec.Name, "payload_type", t.codec.PayloadType)
}

// Stop signals both loops to exit and waits for them, then closes the
// frame queues so any blocked consumer wakes.
func (t *Termination) Stop() {
	t.stopOnce.Do(func() {
		t.session.Stop()
		t.wg.Wait()
		t.rx.Close()
		t.tx.Close()
		stats := t.session.Stats()
		t.logger.Info("rtp termination stopped",
			"packets_rx", stats.PacketsRX, "packets_tx", stats.PacketsTX,
			"packets_dropped", stats.PacketsDropped)
	})
}

// rxLoop reads RTP packets, decodes them to PCM16 at the codec's native
// rate, resamples to 48kHz (the bridge clock rate), and pushes the
// resulting frame onto rx.
func (t *Termination) rxLoop() {
	defer t.wg.Done()

	buf := make([]byte, maxRTPPacket)
	learned := false
	for {
		if t.session.IsStopped() {
			return
		}
		conn := t.session.Local.RTPConn
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, srcAddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if t.session.IsStopped() {
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			t.logger.Debug("rtp read error", "error", err)
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			t.session.RecordDrop()
			continue
		}
		if int(pkt.PayloadType) != t.codec.PayloadType || len(pkt.Payload) == 0 {
			t.session.RecordDrop()
			continue
		}

		if !learned {
			if t.remote.update(srcAddr) {
				t.logger.Info("symmetric rtp: learned remote address", "address", srcAddr.String())
			}
			learned = true
		}

		samples, err := t.decoder.Decode(pkt.Payload)
		if err != nil {
			t.logger.Debug("codec decode error", "error", err)
			t.session.RecordDrop()
			continue
		}

		t.session.TouchActivity()
		t.session.RecordRX(n)

		frame := audio.Frame{Samples: samples, Rate: t.codec.ClockRate}
		frame48, err := audio.Resample(frame, audio.Rate48k)
		if err != nil {
			t.logger.Debug("resample error", "error", err)
			continue
		}
		t.rx.Push(frame48)
	}
}

// txLoop fires every 20ms and sends exactly one RTP packet: the next
// queued frame if available, otherwise a silence frame, so NAT mappings
// never go quiet even when the AI has nothing to say.
func (t *Termination) txLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if t.session.IsStopped() {
			return
		}
		t.sendOneFrame()
	}
}

func (t *Termination) sendOneFrame() {
	frame, ok := t.tx.TryPop()
	if !ok {
		frame = audio.Silence(audio.Rate48k)
	}

	atRate, err := audio.Resample(frame, t.codec.ClockRate)
	if err != nil {
		t.logger.Debug("resample error", "error", err)
		return
	}

	payload, err := t.encoder.Encode(atRate.Samples)
	if err != nil {
		t.logger.Debug("codec encode error", "error", err)
		return
	}

	buf, err := t.buildRTPPacket(payload)
	if err != nil {
		t.logger.Debug("rtp marshal error", "error", err)
		return
	}
	remote := t.remote.load()
	if remote == nil {
		return
	}
	n, err := t.session.Local.RTPConn.WriteToUDP(buf, remote)
	if err != nil {
		if t.session.IsStopped() {
			return
		}
		t.logger.Debug("rtp write error", "error", err)
		return
	}
	t.session.RecordTX(n)
}

// buildRTPPacket assembles an RTP packet with a monotonically incrementing
// sequence number and timestamp, advancing the timestamp by one codec-rate
// frame's worth of samples per packet.
func (t *Termination) buildRTPPacket(payload []byte) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    uint8(t.codec.PayloadType),
			SequenceNumber: t.seq,
			Timestamp:      t.ts,
			SSRC:           t.ssrc,
		},
		Payload: payload,
	}

	t.seq++
	t.ts += uint32(t.codec.ClockRate.SamplesPerFrame())

	return pkt.Marshal()
}
