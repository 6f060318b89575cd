package sip

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

// RegistrationStatus is the current state of the upstream trunk registration.
type RegistrationStatus string

const (
	RegStatusUnregistered RegistrationStatus = "unregistered"
	RegStatusRegistering  RegistrationStatus = "registering"
	RegStatusRegistered   RegistrationStatus = "registered"
	RegStatusFailed       RegistrationStatus = "failed"
)

// registerExpiry is the expiry we request on each REGISTER; the upstream
// trunk may grant a shorter value, which we then honor for refresh timing.
const registerExpiry = 300

// Registrar maintains the single outbound SIP trunk registration described
// by config: REGISTER, handle digest challenges, and re-register before
// expiry with exponential backoff on failure.
type Registrar struct {
	ua     *sipgo.UserAgent
	client *sipgo.Client
	logger *slog.Logger

	host, port         string
	username, password string
	authUser           string

	mu      sync.RWMutex
	status  RegistrationStatus
	lastErr string
}

// NewRegistrar builds a registrar for the trunk at host:port using username
// and authUser/password for digest auth. authUser falls back to username
// when empty.
func NewRegistrar(ua *sipgo.UserAgent, host, port, username, authUser, password string, logger *slog.Logger) (*Registrar, error) {
	client, err := sipgo.NewClient(ua, sipgo.WithClientLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating sip client: %w", err)
	}
	if authUser == "" {
		authUser = username
	}
	return &Registrar{
		ua:       ua,
		client:   client,
		logger:   logger.With("subsystem", "sip-registrar"),
		host:     host,
		port:     port,
		username: username,
		password: password,
		authUser: authUser,
		status:   RegStatusUnregistered,
	}, nil
}

// Status returns the current registration status and last error, if any.
func (r *Registrar) Status() (RegistrationStatus, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status, r.lastErr
}

func (r *Registrar) setStatus(status RegistrationStatus, errMsg string) {
	r.mu.Lock()
	r.status = status
	r.lastErr = errMsg
	r.mu.Unlock()
}

// Run registers and re-registers in a loop until ctx is canceled. It blocks;
// call it from its own goroutine.
func (r *Registrar) Run(ctx context.Context) {
	bo := newBackoff()
	for {
		r.setStatus(RegStatusRegistering, "")
		granted, err := r.register(ctx, registerExpiry)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := bo.next()
			r.setStatus(RegStatusFailed, err.Error())
			r.logger.Error("trunk registration failed", "error", err, "attempt", bo.attempt, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		bo.reset()
		r.setStatus(RegStatusRegistered, "")
		r.logger.Info("trunk registered", "expires_in", granted)

		refresh := time.Duration(float64(granted)*0.8) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(refresh):
		}
	}
}

// register sends one REGISTER, resolving a digest challenge if presented,
// and returns the server-granted expiry.
func (r *Registrar) register(ctx context.Context, expiry int) (int, error) {
	recipientStr := fmt.Sprintf("sip:%s:%s", r.host, r.port)
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		return 0, fmt.Errorf("parsing recipient uri: %w", err)
	}

	req := sip.NewRequest(sip.REGISTER, recipient)

	aor := fmt.Sprintf("<sip:%s@%s>", r.username, r.host)
	req.AppendHeader(sip.NewHeader("From", aor))
	req.AppendHeader(sip.NewHeader("To", aor))
	req.AppendHeader(sip.NewHeader("Contact", fmt.Sprintf("<sip:%s@%s>", r.username, r.ua.Hostname())))
	req.AppendHeader(sip.NewHeader("Expires", strconv.Itoa(expiry)))

	tx, err := r.client.TransactionRequest(ctx, req, sipgo.ClientRequestRegisterBuild)
	if err != nil {
		return 0, fmt.Errorf("sending register: %w", err)
	}
	res, err := getResponse(ctx, tx)
	tx.Terminate()
	if err != nil {
		return 0, fmt.Errorf("waiting for register response: %w", err)
	}

	if res.StatusCode == 401 || res.StatusCode == 407 {
		res, err = r.authenticate(ctx, req, recipientStr, res)
		if err != nil {
			return 0, err
		}
	}

	if res.StatusCode != 200 {
		return 0, fmt.Errorf("register failed with status %d %s", res.StatusCode, res.Reason)
	}

	granted := expiry
	if contactHdr := res.GetHeader("Contact"); contactHdr != nil {
		if parsed := parseContactExpires(contactHdr.Value()); parsed > 0 {
			granted = parsed
		}
	} else if expiresHdr := res.GetHeader("Expires"); expiresHdr != nil {
		if parsed := parseExpiresHeader(expiresHdr.Value()); parsed > 0 {
			granted = parsed
		}
	}
	return granted, nil
}

func (r *Registrar) authenticate(ctx context.Context, req *sip.Request, recipientStr string, challenge *sip.Response) (*sip.Response, error) {
	authHeader := "WWW-Authenticate"
	authzHeader := "Authorization"
	if challenge.StatusCode == 407 {
		authHeader = "Proxy-Authenticate"
		authzHeader = "Proxy-Authorization"
	}

	wwwAuth := challenge.GetHeader(authHeader)
	if wwwAuth == nil {
		return nil, fmt.Errorf("received %d but no %s header", challenge.StatusCode, authHeader)
	}

	chal, err := digest.ParseChallenge(wwwAuth.Value())
	if err != nil {
		return nil, fmt.Errorf("parsing auth challenge: %w", err)
	}

	cred, err := digest.Digest(chal, digest.Options{
		Method:   req.Method.String(),
		URI:      recipientStr,
		Username: r.authUser,
		Password: r.password,
	})
	if err != nil {
		return nil, fmt.Errorf("computing digest: %w", err)
	}

	authReq := req.Clone()
	authReq.RemoveHeader("Via")
	authReq.AppendHeader(sip.NewHeader(authzHeader, cred.String()))

	tx, err := r.client.TransactionRequest(ctx, authReq,
		sipgo.ClientRequestIncreaseCSEQ,
		sipgo.ClientRequestAddVia,
	)
	if err != nil {
		return nil, fmt.Errorf("sending authenticated register: %w", err)
	}
	defer tx.Terminate()
	return getResponse(ctx, tx)
}

func getResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tx.Done():
		return nil, fmt.Errorf("transaction terminated: %w", tx.Err())
	case res := <-tx.Responses():
		return res, nil
	}
}

// parseContactExpires extracts the expires parameter from a Contact header
// value, e.g. <sip:user@host>;expires=3600. Returns 0 if absent or invalid.
func parseContactExpires(contactValue string) int {
	lower := strings.ToLower(contactValue)
	idx := strings.Index(lower, ";expires=")
	if idx < 0 {
		return 0
	}
	rest := contactValue[idx+len(";expires="):]
	if end := strings.IndexAny(rest, ";,> \t"); end > 0 {
		rest = rest[:end]
	}
	val, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0
	}
	return val
}

// parseExpiresHeader parses a plain-integer Expires header value. Returns 0
// if absent or invalid.
func parseExpiresHeader(value string) int {
	val, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return val
}
