package media

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// PortPair holds an RTP port and its companion RTCP port (RTP+1).
type PortPair struct {
	RTP  int
	RTCP int
}

// SocketPair holds the UDP connections bound for one call's RTP/RTCP port
// pair.
type SocketPair struct {
	Ports    PortPair
	RTPConn  *net.UDPConn
	RTCPConn *net.UDPConn
}

// Close releases both UDP sockets.
func (sp *SocketPair) Close() error {
	var rtpErr, rtcpErr error
	if sp.RTPConn != nil {
		rtpErr = sp.RTPConn.Close()
	}
	if sp.RTCPConn != nil {
		rtcpErr = sp.RTCPConn.Close()
	}
	if rtpErr != nil {
		return rtpErr
	}
	return rtcpErr
}

// PortPool binds RTP sockets out of the operator-configured media-port
// window (e.g. 4000-4100) so the firewall can be restricted to it.
// A node only ever handles one active call at a time, so at most one pair
// is ever checked out -- the scan-and-retry allocator below exists purely
// to step past a port the OS is still holding in TIME_WAIT from the
// previous call's teardown, not to serve concurrent calls.
type PortPool struct {
	portMin int
	portMax int
	logger  *slog.Logger

	mu        sync.Mutex
	allocated map[int]struct{} // RTP ports currently checked out (even numbers)
	nextPort  int              // next even port to try
}

// NewPortPool creates an RTP port pool bound to [portMin, portMax].
// portMin must be even; portMax must be > portMin.
func NewPortPool(portMin, portMax int, logger *slog.Logger) (*PortPool, error) {
	if portMin%2 != 0 {
		return nil, fmt.Errorf("portMin must be even, got %d", portMin)
	}
	if portMax <= portMin {
		return nil, fmt.Errorf("portMax (%d) must be greater than portMin (%d)", portMax, portMin)
	}

	l := logger.With("subsystem", "rtp-port-pool")
	l.Info("rtp media port window configured",
		"port_min", portMin,
		"port_max", portMax,
		"capacity", pairCapacity(portMin, portMax),
	)

	return &PortPool{
		portMin:   portMin,
		portMax:   portMax,
		logger:    l,
		allocated: make(map[int]struct{}),
		nextPort:  portMin,
	}, nil
}

func pairCapacity(portMin, portMax int) int {
	return (portMax - portMin + 1) / 2
}

// Capacity returns the total number of port pairs the configured window
// can hold.
func (p *PortPool) Capacity() int {
	return pairCapacity(p.portMin, p.portMax)
}

// InUse reports whether this node currently has a call's port pair
// checked out -- true means a second concurrent Allocate would either
// queue behind teardown or indicate the single-active-call invariant has
// been violated somewhere upstream.
func (p *PortPool) InUse() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.allocated) > 0
}

// Allocate binds an RTP+RTCP UDP socket pair from the configured window,
// scanning forward from the last-tried port so a port still draining from
// the previous call's TIME_WAIT doesn't get retried immediately.
func (p *PortPool) Allocate() (*SocketPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity := pairCapacity(p.portMin, p.portMax)
	if len(p.allocated) >= capacity {
		return nil, fmt.Errorf("no rtp ports available (all %d pairs allocated)", capacity)
	}

	startPort := p.nextPort
	for {
		port := p.nextPort

		p.nextPort += 2
		if p.nextPort > p.portMax-1 {
			p.nextPort = p.portMin
		}

		if _, taken := p.allocated[port]; taken {
			if p.nextPort == startPort {
				return nil, fmt.Errorf("no rtp ports available (all checked)")
			}
			continue
		}

		pair, err := bindPair(port)
		if err != nil {
			p.logger.Debug("port pair bind failed, trying next",
				"rtp_port", port,
				"error", err,
			)
			if p.nextPort == startPort {
				return nil, fmt.Errorf("no bindable rtp ports available in window %d-%d", p.portMin, p.portMax)
			}
			continue
		}

		p.allocated[port] = struct{}{}
		p.logger.Debug("port pair allocated for call", "rtp_port", port, "rtcp_port", port+1)
		return pair, nil
	}
}

// Release closes the UDP sockets and returns the port pair to the pool,
// called once the call's supervisor tears down.
func (p *PortPool) Release(pair *SocketPair) {
	if pair == nil {
		return
	}

	if err := pair.Close(); err != nil {
		p.logger.Warn("error closing socket pair", "rtp_port", pair.Ports.RTP, "error", err)
	}

	p.mu.Lock()
	delete(p.allocated, pair.Ports.RTP)
	p.mu.Unlock()

	p.logger.Debug("port pair released", "rtp_port", pair.Ports.RTP, "rtcp_port", pair.Ports.RTCP)
}

// bindPair creates UDP sockets bound to the given even port (RTP) and its
// companion odd port (RTCP). If either bind fails, both are cleaned up.
func bindPair(rtpPort int) (*SocketPair, error) {
	rtpAddr := &net.UDPAddr{IP: net.IPv4zero, Port: rtpPort}
	rtpConn, err := net.ListenUDP("udp", rtpAddr)
	if err != nil {
		return nil, fmt.Errorf("binding rtp port %d: %w", rtpPort, err)
	}

	rtcpPort := rtpPort + 1
	rtcpAddr := &net.UDPAddr{IP: net.IPv4zero, Port: rtcpPort}
	rtcpConn, err := net.ListenUDP("udp", rtcpAddr)
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("binding rtcp port %d: %w", rtcpPort, err)
	}

	return &SocketPair{
		Ports:    PortPair{RTP: rtpPort, RTCP: rtcpPort},
		RTPConn:  rtpConn,
		RTCPConn: rtcpConn,
	}, nil
}
