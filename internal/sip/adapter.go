package sip

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/callgate/callgate/internal/config"
	"github.com/callgate/callgate/internal/media"
)

// rxQueueCapacity/txQueueCapacity size the per-call pre-resample 48kHz frame
// queues, matching the post-resample queue sizes downstream (RX-16k: 50,
// TX-48k: 500) since the resample step is 1:1 on frame count.
const (
	rxQueueCapacity = 50
	txQueueCapacity = 500
)

// CallHandler is invoked once per accepted call, on its own goroutine. It
// owns the termination for the call's lifetime and returns the hangup cause
// to record once the call ends (caller BYE, callee BYE via Hangup, or ctx
// cancellation on shutdown).
type CallHandler interface {
	// Authorize is consulted before any SDP/codec negotiation or media
	// allocation happens, so a blacklisted caller never costs an RTP port.
	// Returning false rejects the INVITE with 403 Forbidden and records
	// nothing further.
	Authorize(ctx context.Context, callerIDNum string) (ok bool)
	HandleCall(ctx context.Context, callID, callerIDName, callerIDNum string, term *media.Termination) (hangupCause string)
}

// Adapter wraps the sipgo UA/Server with the telephony bridge's handlers:
// a single upstream trunk registration and single-active-call INVITE
// handling, following internal/sip/server.go's NewServer/registerHandlers/
// Start/Stop shape.
type Adapter struct {
	cfg    *config.Config
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client
	tracer *MessageTracer

	registrar  *Registrar
	sessionMgr *media.SessionManager
	handler    CallHandler

	mu         sync.Mutex
	activeCall *activeCall
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

type activeCall struct {
	callID    string
	tx        sip.ServerTransaction
	term      *media.Termination
	cancel    context.CancelFunc
	inviteReq *sip.Request // kept to build the reverse-dialog BYE on Hangup
}

// NewAdapter builds a SIP adapter bound to cfg's trunk and RTP port range.
func NewAdapter(cfg *config.Config, handler CallHandler, logger *slog.Logger) (*Adapter, error) {
	logger = logger.With("component", "sip")

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent("callgate"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}

	tracer := NewMessageTracer(logger, SIPLogOff)
	srv, err := sipgo.NewServer(ua,
		sipgo.WithServerLogger(logger),
	)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("creating sip server: %w", err)
	}
	client, err := sipgo.NewClient(ua, sipgo.WithClientLogger(logger))
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating sip client: %w", err)
	}

	rtpPorts, err := media.NewPortPool(cfg.RTPPortMin, cfg.RTPPortMax, logger)
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating rtp port pool: %w", err)
	}
	sessionMgr := media.NewSessionManager(rtpPorts, logger)

	var registrar *Registrar
	if cfg.SIPTrunkHost != "" {
		registrar, err = NewRegistrar(ua, cfg.SIPTrunkHost, fmt.Sprintf("%d", cfg.SIPPort), cfg.SIPTrunkUser, cfg.SIPAuthUser, cfg.SIPTrunkPass, logger)
		if err != nil {
			srv.Close()
			ua.Close()
			return nil, fmt.Errorf("creating trunk registrar: %w", err)
		}
	}

	a := &Adapter{
		cfg:        cfg,
		ua:         ua,
		srv:        srv,
		client:     client,
		tracer:     tracer,
		registrar:  registrar,
		sessionMgr: sessionMgr,
		handler:    handler,
		logger:     logger,
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.srv.OnInvite(a.handleInvite)
	a.srv.OnAck(a.handleAck)
	a.srv.OnBye(a.handleBye)
	a.srv.OnCancel(a.handleCancel)
	a.srv.OnOptions(a.handleOptions)
}

// Start begins listening on UDP/TCP (and TLS if configured) and, if a trunk
// is configured, begins its registration loop. It returns once listeners
// are launched; it does not block.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	udpAddr := fmt.Sprintf("0.0.0.0:%d", a.cfg.SIPPort)
	tcpAddr := fmt.Sprintf("0.0.0.0:%d", a.cfg.SIPPort)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("sip udp listener starting", "addr", udpAddr)
		if err := a.srv.ListenAndServe(ctx, "udp", udpAddr); err != nil {
			a.logger.Error("sip udp listener stopped", "error", err)
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("sip tcp listener starting", "addr", tcpAddr)
		if err := a.srv.ListenAndServe(ctx, "tcp", tcpAddr); err != nil {
			a.logger.Error("sip tcp listener stopped", "error", err)
		}
	}()

	if a.cfg.TLSEnabled() {
		tlsAddr := fmt.Sprintf("0.0.0.0:%d", a.cfg.SIPTLSPort)
		cert, err := tls.LoadX509KeyPair(a.cfg.TLSCert, a.cfg.TLSKey)
		if err != nil {
			a.cancel()
			return fmt.Errorf("loading tls certificate: %w", err)
		}
		tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.Info("sip tls listener starting", "addr", tlsAddr)
			if err := a.srv.ListenAndServeTLS(ctx, "tls", tlsAddr, tlsCfg); err != nil {
				a.logger.Error("sip tls listener stopped", "error", err)
			}
		}()
	}

	if a.registrar != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.registrar.Run(ctx)
		}()
	}

	a.sessionMgr.StartReaper()
	return nil
}

// Stop tears down the active call (if any), stops listeners, and releases
// all media resources.
func (a *Adapter) Stop() {
	a.logger.Info("stopping sip adapter")
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	if a.activeCall != nil {
		a.activeCall.cancel()
	}
	a.mu.Unlock()
	a.wg.Wait()
	a.sessionMgr.StopReaper()
	a.sessionMgr.ReleaseAll()
	a.srv.Close()
	a.ua.Close()
	a.logger.Info("sip adapter stopped")
}

// RegistrationStatus reports the upstream trunk's registration state, or
// (RegStatusUnregistered, "") if no trunk is configured.
func (a *Adapter) RegistrationStatus() (RegistrationStatus, string) {
	if a.registrar == nil {
		return RegStatusUnregistered, ""
	}
	return a.registrar.Status()
}

// handleInvite accepts the call if none is active and the offered codecs
// include one we support, otherwise rejects with 486 Busy Here or 488 Not
// Acceptable Here.
func (a *Adapter) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	logger := a.logger.With("call_id", callID)

	a.mu.Lock()
	if a.activeCall != nil {
		a.mu.Unlock()
		logger.Warn("rejecting invite: a call is already active")
		respond(tx, req, 486, "Busy Here", nil, logger)
		return
	}
	a.mu.Unlock()

	_ = tx.Respond(sip.NewResponseFromRequest(req, 100, "Trying", nil))

	_, callerNum := callerIdentity(req)
	if !a.handler.Authorize(context.Background(), callerNum) {
		logger.Warn("rejecting invite: caller is blacklisted", "caller", callerNum)
		respond(tx, req, 403, "Forbidden", nil, logger)
		return
	}

	offer, err := media.ParseSDP(req.Body())
	if err != nil {
		logger.Error("invalid sdp offer", "error", err)
		respond(tx, req, 488, "Not Acceptable Here", nil, logger)
		return
	}
	codec, ok := media.NegotiateAnswer(offer)
	if !ok {
		logger.Warn("no common codec with offer")
		respond(tx, req, 488, "Not Acceptable Here", nil, logger)
		return
	}

	am := offer.AudioMedia()
	remoteHost := offer.ConnectionAddress(am)
	remoteAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", remoteHost, am.Port))
	if err != nil {
		logger.Error("resolving remote rtp address", "error", err)
		respond(tx, req, 500, "Server Internal Error", nil, logger)
		return
	}

	sessionID := uuid.NewString()
	session, err := a.sessionMgr.Allocate(sessionID, callID)
	if err != nil {
		logger.Error("allocating media session", "error", err)
		respond(tx, req, 500, "Server Internal Error", nil, logger)
		return
	}

	term, err := media.NewTermination(session, codec, remoteAddr, rxQueueCapacity, txQueueCapacity, a.logger)
	if err != nil {
		a.sessionMgr.Release(sessionID)
		logger.Error("creating rtp termination", "error", err)
		respond(tx, req, 500, "Server Internal Error", nil, logger)
		return
	}

	answer := buildAnswerSDP(a.cfg, offer, codec, session.Local.Ports.RTP)
	res := sip.NewResponseFromRequest(req, 200, "OK", answer.Marshal())
	res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := tx.Respond(res); err != nil {
		a.sessionMgr.Release(sessionID)
		logger.Error("failed sending 200 ok", "error", err)
		return
	}

	callCtx, cancel := context.WithCancel(context.Background())
	ac := &activeCall{callID: callID, tx: tx, term: term, cancel: cancel, inviteReq: req}
	a.mu.Lock()
	a.activeCall = ac
	a.mu.Unlock()

	term.Start()

	callerName, _ := callerIdentity(req)
	logger.Info("call accepted", "codec", codec.Name, "caller", callerNum)

	go func() {
		cause := a.handler.HandleCall(callCtx, callID, callerName, callerNum, term)
		logger.Info("call ended", "cause", cause)
		term.Stop()
		a.sessionMgr.Release(sessionID)
		a.mu.Lock()
		if a.activeCall == ac {
			a.activeCall = nil
		}
		a.mu.Unlock()
	}()
}

func (a *Adapter) handleAck(req *sip.Request, tx sip.ServerTransaction) {
	a.logger.Debug("sip ack received", "call_id", callIDOf(req))
}

// handleBye ends the active call if the BYE matches it; the termination's
// own goroutine (spawned in handleInvite) notices the cancellation and
// returns, which tears everything down.
func (a *Adapter) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	a.mu.Lock()
	ac := a.activeCall
	a.mu.Unlock()

	if ac == nil || ac.callID != callID {
		a.logger.Warn("bye for unknown call", "call_id", callID)
		respond(tx, req, 481, "Call/Transaction Does Not Exist", nil, a.logger)
		return
	}
	respond(tx, req, 200, "OK", nil, a.logger)
	ac.cancel()
}

func (a *Adapter) handleCancel(req *sip.Request, tx sip.ServerTransaction) {
	callID := callIDOf(req)
	a.logger.Info("sip cancel received", "call_id", callID)
	respond(tx, req, 200, "OK", nil, a.logger)

	a.mu.Lock()
	ac := a.activeCall
	if ac != nil && ac.callID == callID {
		a.activeCall = nil
	}
	a.mu.Unlock()
	if ac != nil && ac.callID == callID {
		ac.cancel()
	}
}

func (a *Adapter) handleOptions(req *sip.Request, tx sip.ServerTransaction) {
	respond(tx, req, 200, "OK", nil, a.logger)
}

// Hangup ends the currently active call, if its ID matches, sending a BYE
// to the trunk. Used by the supervisor to hang up on sentinel commands
// (__HANGUP__, security-gate lockout) rather than waiting on the caller.
func (a *Adapter) Hangup(callID string) {
	a.mu.Lock()
	ac := a.activeCall
	a.mu.Unlock()
	if ac == nil || ac.callID != callID {
		return
	}
	bye := buildReverseDialogBYE(ac.inviteReq)
	if err := a.client.WriteRequest(bye); err != nil {
		a.logger.Error("failed to send bye to caller", "call_id", callID, "error", err)
	} else {
		a.logger.Debug("bye sent to caller", "call_id", callID)
	}
	ac.cancel()
}

// buildReverseDialogBYE builds a BYE sent from the PBX (as UAS) back to the
// caller: From/To are swapped relative to the original INVITE since we are
// now the dialog-terminating party.
func buildReverseDialogBYE(inviteReq *sip.Request) *sip.Request {
	recipient := inviteReq.Recipient
	if contact := inviteReq.Contact(); contact != nil {
		recipient = contact.Address
	}

	bye := sip.NewRequest(sip.BYE, *recipient.Clone())
	bye.SipVersion = inviteReq.SipVersion

	if h := inviteReq.To(); h != nil {
		fromHeader := h.AsFrom()
		bye.AppendHeader(&fromHeader)
	}
	if h := inviteReq.From(); h != nil {
		toHeader := h.AsTo()
		bye.AppendHeader(&toHeader)
	}
	if h := inviteReq.CallID(); h != nil {
		bye.AppendHeader(sip.HeaderClone(h))
	}
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.BYE})
	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)
	bye.SetTransport(inviteReq.Transport())
	bye.SetSource(inviteReq.Source())

	return bye
}

func respond(tx sip.ServerTransaction, req *sip.Request, code int, reason string, body []byte, logger *slog.Logger) {
	res := sip.NewResponseFromRequest(req, code, reason, body)
	if err := tx.Respond(res); err != nil {
		logger.Error("failed to send sip response", "code", code, "error", err)
	}
}

func callIDOf(req *sip.Request) string {
	if cid := req.CallID(); cid != nil {
		return cid.Value()
	}
	return ""
}

// callerIdentity extracts the caller's display name and number from the
// From header, falling back to ParseCallerID on the raw header text for
// the number when sipgo's structured parse comes up empty.
func callerIdentity(req *sip.Request) (name, number string) {
	from := req.From()
	if from == nil {
		return "", ""
	}
	name = from.DisplayName
	number = from.Address.User
	if number == "" {
		number = ParseCallerID(from.Value())
	}
	return name, number
}
