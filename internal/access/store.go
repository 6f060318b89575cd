// Package access implements the caller-ID access store: blacklist,
// whitelist, and failed-unlock-attempt tracking with automatic promotion
// to the blacklist, backed by persistence with every read and write
// serialized behind a single mutex (contention is negligible: at most one
// call in progress plus the dashboard). Nothing is cached in-process; each
// method goes to the repositories.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/callgate/callgate/internal/database"
	"github.com/callgate/callgate/internal/database/models"
)

// promotionThreshold and promotionWindow implement the 3-in-12h
// auto-promotion rule.
const (
	promotionThreshold = 3
	promotionWindow    = 12 * time.Hour
)

// Decision is the pre-gate verdict for an inbound call's caller ID.
type Decision int

const (
	DecisionNormal Decision = iota
	DecisionWhitelisted
	DecisionBlacklisted
)

// Store is the single shared access-control point for every call. All
// methods are safe for concurrent use; the mutex serializes reads against
// writes so a promotion mid-check can never race a fresh INVITE.
type Store struct {
	mu sync.Mutex

	blacklist    database.BlacklistRepository
	whitelist    database.WhitelistRepository
	failedUnlock database.FailedUnlockRepository

	logger *slog.Logger
}

// NewStore builds an access store over the given repositories.
func NewStore(blacklist database.BlacklistRepository, whitelist database.WhitelistRepository, failedUnlock database.FailedUnlockRepository, logger *slog.Logger) *Store {
	return &Store{
		blacklist:    blacklist,
		whitelist:    whitelist,
		failedUnlock: failedUnlock,
		logger:       logger.With("subsystem", "access"),
	}
}

// Check is the pre-gate decision consulted on every INVITE, before media
// bridging begins: blacklisted callers are rejected outright; whitelisted
// callers skip the security gate entirely.
func (s *Store) Check(ctx context.Context, callerID string) (Decision, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, err := s.blacklist.GetByCallerID(ctx, callerID); err != nil {
		return DecisionNormal, "", fmt.Errorf("checking blacklist: %w", err)
	} else if b != nil {
		return DecisionBlacklisted, b.Reason, nil
	}

	if w, err := s.whitelist.GetByCallerID(ctx, callerID); err != nil {
		return DecisionNormal, "", fmt.Errorf("checking whitelist: %w", err)
	} else if w != nil {
		return DecisionWhitelisted, "", nil
	}

	return DecisionNormal, "", nil
}

// RecordFailedUnlock appends a failed-unlock record for callerID and
// auto-promotes to the blacklist if the 3-in-12h threshold is now met.
// Returns true if this failure triggered a promotion.
func (s *Store) RecordFailedUnlock(ctx context.Context, callerID, callID, codeTried string) (promoted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &models.FailedUnlockCall{
		CallerID:  callerID,
		CallID:    callID,
		CodeTried: codeTried,
		CreatedAt: time.Now(),
	}
	if err := s.failedUnlock.Create(ctx, entry); err != nil {
		return false, fmt.Errorf("recording failed unlock: %w", err)
	}

	since := time.Now().Add(-promotionWindow)
	count, err := s.failedUnlock.CountSince(ctx, callerID, since)
	if err != nil {
		return false, fmt.Errorf("counting failed unlocks: %w", err)
	}
	if count < promotionThreshold {
		return false, nil
	}

	if err := s.blacklist.Create(ctx, &models.Blacklist{
		CallerID:  callerID,
		Reason:    "auto: 3 failed unlocks",
		CreatedAt: time.Now(),
	}); err != nil {
		return false, fmt.Errorf("auto-promoting to blacklist: %w", err)
	}
	s.logger.Warn("caller auto-promoted to blacklist", "caller_id", callerID, "failures", count)
	return true, nil
}

// Blacklist/Whitelist expose the admin-facing snapshot and mutation
// operations used by the dashboard's REST surface.

func (s *Store) ListBlacklist(ctx context.Context) ([]models.Blacklist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist.List(ctx)
}

func (s *Store) AddBlacklist(ctx context.Context, callerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist.Create(ctx, &models.Blacklist{CallerID: callerID, Reason: reason, CreatedAt: time.Now()})
}

// RemoveBlacklist deletes callerID from the blacklist, cascading to clear
// its failed-unlock history so the removal is not immediately re-tripped.
func (s *Store) RemoveBlacklist(ctx context.Context, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist.Delete(ctx, callerID)
}

func (s *Store) ListWhitelist(ctx context.Context) ([]models.Whitelist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.whitelist.List(ctx)
}

func (s *Store) AddWhitelist(ctx context.Context, callerID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.whitelist.Create(ctx, &models.Whitelist{CallerID: callerID, Note: note, CreatedAt: time.Now()})
}

func (s *Store) RemoveWhitelist(ctx context.Context, callerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.whitelist.Delete(ctx, callerID)
}
