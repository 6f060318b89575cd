package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/callgate/callgate/internal/database/models"
)

type blacklistRepo struct{ db *DB }

// NewBlacklistRepository creates a new BlacklistRepository.
func NewBlacklistRepository(db *DB) BlacklistRepository {
	return &blacklistRepo{db: db}
}

func (r *blacklistRepo) Create(ctx context.Context, entry *models.Blacklist) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO blacklist (caller_id, reason, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(caller_id) DO UPDATE SET reason = excluded.reason`,
		entry.CallerID, entry.Reason, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting blacklist entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *blacklistRepo) GetByCallerID(ctx context.Context, callerID string) (*models.Blacklist, error) {
	var b models.Blacklist
	err := r.db.QueryRowContext(ctx,
		`SELECT id, caller_id, reason, created_at FROM blacklist WHERE caller_id = ?`,
		callerID,
	).Scan(&b.ID, &b.CallerID, &b.Reason, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting blacklist entry: %w", err)
	}
	return &b, nil
}

func (r *blacklistRepo) List(ctx context.Context) ([]models.Blacklist, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, caller_id, reason, created_at FROM blacklist ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing blacklist: %w", err)
	}
	defer rows.Close()

	var out []models.Blacklist
	for rows.Next() {
		var b models.Blacklist
		if err := rows.Scan(&b.ID, &b.CallerID, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning blacklist row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *blacklistRepo) Delete(ctx context.Context, callerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM blacklist WHERE caller_id = ?`, callerID); err != nil {
		return fmt.Errorf("deleting blacklist entry: %w", err)
	}
	// Cascades: clear the failed-unlock history so a removed entry doesn't
	// immediately re-trip the 3-in-12h auto-promotion threshold.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM failed_unlock_calls WHERE caller_id = ?`, callerID); err != nil {
		return fmt.Errorf("clearing failed unlock history: %w", err)
	}
	return nil
}

type whitelistRepo struct{ db *DB }

// NewWhitelistRepository creates a new WhitelistRepository.
func NewWhitelistRepository(db *DB) WhitelistRepository {
	return &whitelistRepo{db: db}
}

func (r *whitelistRepo) Create(ctx context.Context, entry *models.Whitelist) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO whitelist (caller_id, note, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(caller_id) DO UPDATE SET note = excluded.note`,
		entry.CallerID, entry.Note, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting whitelist entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *whitelistRepo) GetByCallerID(ctx context.Context, callerID string) (*models.Whitelist, error) {
	var w models.Whitelist
	err := r.db.QueryRowContext(ctx,
		`SELECT id, caller_id, note, created_at FROM whitelist WHERE caller_id = ?`,
		callerID,
	).Scan(&w.ID, &w.CallerID, &w.Note, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting whitelist entry: %w", err)
	}
	return &w, nil
}

func (r *whitelistRepo) List(ctx context.Context) ([]models.Whitelist, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, caller_id, note, created_at FROM whitelist ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing whitelist: %w", err)
	}
	defer rows.Close()

	var out []models.Whitelist
	for rows.Next() {
		var w models.Whitelist
		if err := rows.Scan(&w.ID, &w.CallerID, &w.Note, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning whitelist row: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *whitelistRepo) Delete(ctx context.Context, callerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM whitelist WHERE caller_id = ?`, callerID); err != nil {
		return fmt.Errorf("deleting whitelist entry: %w", err)
	}
	return nil
}

type failedUnlockRepo struct{ db *DB }

// NewFailedUnlockRepository creates a new FailedUnlockRepository.
func NewFailedUnlockRepository(db *DB) FailedUnlockRepository {
	return &failedUnlockRepo{db: db}
}

func (r *failedUnlockRepo) Create(ctx context.Context, entry *models.FailedUnlockCall) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO failed_unlock_calls (caller_id, call_id, code_tried, created_at) VALUES (?, ?, ?, ?)`,
		entry.CallerID, entry.CallID, entry.CodeTried, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting failed unlock record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// CountSince returns the number of failed unlock attempts for callerID with
// created_at >= since, the basis for the 12h window auto-promotion check.
func (r *failedUnlockRepo) CountSince(ctx context.Context, callerID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM failed_unlock_calls WHERE caller_id = ? AND created_at >= ?`,
		callerID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting failed unlocks: %w", err)
	}
	return count, nil
}

func (r *failedUnlockRepo) DeleteByCallerID(ctx context.Context, callerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM failed_unlock_calls WHERE caller_id = ?`, callerID); err != nil {
		return fmt.Errorf("deleting failed unlock records: %w", err)
	}
	return nil
}
