package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SessionState represents the lifecycle state of an RTP session.
type SessionState int

const (
	SessionStateNew     SessionState = iota // allocated, not yet terminating media
	SessionStateActive                      // actively sending/receiving RTP
	SessionStateStopped                     // stopped, awaiting release
)

func (s SessionState) String() string {
	switch s {
	case SessionStateNew:
		return "new"
	case SessionStateActive:
		return "active"
	case SessionStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SessionStats holds RTP packet counters for one call's media leg.
type SessionStats struct {
	PacketsRX      uint64
	PacketsTX      uint64
	BytesRX        uint64
	BytesTX        uint64
	PacketsDropped uint64
}

func (s SessionStats) TotalPackets() uint64 { return s.PacketsRX + s.PacketsTX }
func (s SessionStats) TotalBytes() uint64   { return s.BytesRX + s.BytesTX }

// Session represents the single RTP leg the bridge terminates for one call:
// the PSTN trunk is the only remote party the adapter ever talks to, so
// (unlike a B2BUA) there is exactly one socket pair, not two.
type Session struct {
	ID        string
	CallID    string
	Local     *SocketPair
	CreatedAt time.Time

	mu    sync.RWMutex
	state SessionState

	stopped      atomic.Bool
	lastActivity atomic.Int64

	packetsRX      atomic.Uint64
	packetsTX      atomic.Uint64
	bytesRX        atomic.Uint64
	bytesTX        atomic.Uint64
	packetsDropped atomic.Uint64
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) Stop() {
	s.stopped.Store(true)
	s.SetState(SessionStateStopped)
}

func (s *Session) IsStopped() bool {
	return s.stopped.Load()
}

func (s *Session) TouchActivity() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) LastActivity() time.Time {
	ns := s.lastActivity.Load()
	if ns == 0 {
		return s.CreatedAt
	}
	return time.Unix(0, ns)
}

func (s *Session) RecordRX(size int) {
	s.packetsRX.Add(1)
	s.bytesRX.Add(uint64(size))
}

func (s *Session) RecordTX(size int) {
	s.packetsTX.Add(1)
	s.bytesTX.Add(uint64(size))
}

func (s *Session) RecordDrop() {
	s.packetsDropped.Add(1)
}

func (s *Session) Stats() SessionStats {
	return SessionStats{
		PacketsRX:      s.packetsRX.Load(),
		PacketsTX:      s.packetsTX.Load(),
		BytesRX:        s.bytesRX.Load(),
		BytesTX:        s.bytesTX.Load(),
		PacketsDropped: s.packetsDropped.Load(),
	}
}

const (
	// DefaultSessionTimeout is how long a session can be idle before the
	// reaper considers it orphaned (the SIP BYE path should always release
	// it first; this is a backstop against a stack that drops the BYE).
	DefaultSessionTimeout = 60 * time.Second
	defaultReapInterval   = 30 * time.Second
)

// SessionManager allocates and tracks RTP media sessions. This node handles
// one active call at a time, so at most one entry is ever live, but the map
// keeps the allocation API uniform and gives the reaper something to scan.
type SessionManager struct {
	proxy  *PortPool
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sessionTimeout time.Duration
	cancelReaper   context.CancelFunc
	reaperDone     chan struct{}
}

func NewSessionManager(proxy *PortPool, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		proxy:          proxy,
		logger:         logger.With("subsystem", "media-sessions"),
		sessions:       make(map[string]*Session),
		sessionTimeout: DefaultSessionTimeout,
	}
}

func (m *SessionManager) SetSessionTimeout(d time.Duration) {
	m.sessionTimeout = d
}

// Allocate creates a new RTP session for a call by allocating one local
// socket pair.
func (m *SessionManager) Allocate(sessionID, callID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sessionID]; exists {
		return nil, fmt.Errorf("session %q already exists", sessionID)
	}

	pair, err := m.proxy.Allocate()
	if err != nil {
		return nil, fmt.Errorf("allocating media leg: %w", err)
	}

	session := &Session{
		ID:        sessionID,
		CallID:    callID,
		Local:     pair,
		CreatedAt: time.Now(),
		state:     SessionStateNew,
	}

	m.sessions[sessionID] = session

	m.logger.Info("rtp session allocated",
		"session_id", sessionID, "call_id", callID, "rtp_port", pair.Ports.RTP)

	return session, nil
}

func (m *SessionManager) Release(sessionID string) {
	m.mu.Lock()
	session, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	session.Stop()
	m.proxy.Release(session.Local)

	m.logger.Info("rtp session released", "session_id", sessionID, "call_id", session.CallID)
}

func (m *SessionManager) Get(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) ReleaseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Release(id)
	}
	m.logger.Info("all rtp sessions released", "count", len(ids))
}

func (m *SessionManager) StartReaper() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelReaper = cancel
	m.reaperDone = make(chan struct{})
	go m.reapLoop(ctx)
	m.logger.Info("session reaper started", "timeout", m.sessionTimeout.String())
}

func (m *SessionManager) StopReaper() {
	if m.cancelReaper == nil {
		return
	}
	m.cancelReaper()
	<-m.reaperDone
	m.logger.Info("session reaper stopped")
}

func (m *SessionManager) reapLoop(ctx context.Context) {
	defer close(m.reaperDone)
	ticker := time.NewTicker(defaultReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapOrphaned()
		}
	}
}

func (m *SessionManager) reapOrphaned() {
	now := time.Now()
	m.mu.RLock()
	var orphaned []string
	for id, session := range m.sessions {
		if now.Sub(session.LastActivity()) > m.sessionTimeout {
			orphaned = append(orphaned, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range orphaned {
		m.logger.Warn("reaping orphaned rtp session", "session_id", id)
		m.Release(id)
	}
}
