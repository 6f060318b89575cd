package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/callgate/callgate/internal/database/models"
)

// callRepo implements CallRepository.
type callRepo struct {
	db *DB
}

// NewCallRepository creates a new CallRepository.
func NewCallRepository(db *DB) CallRepository {
	return &callRepo{db: db}
}

func (r *callRepo) Create(ctx context.Context, call *models.Call) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO calls (call_id, caller_id_name, caller_id_num, started_at,
		 ended_at, duration_s, unlocked, final_agent, cost_cents, hangup_cause,
		 transcript, logs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.CallID, call.CallerIDName, call.CallerIDNum, call.StartedAt,
		call.EndedAt, call.DurationS, call.Unlocked, call.FinalAgent,
		call.CostCents, call.HangupCause, call.Transcript, call.Logs,
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	call.ID = id
	return nil
}

func (r *callRepo) GetByID(ctx context.Context, id int64) (*models.Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, call_id, caller_id_name, caller_id_num, started_at, ended_at,
		 duration_s, unlocked, final_agent, cost_cents, hangup_cause, transcript, logs
		 FROM calls WHERE id = ?`, id,
	))
}

func (r *callRepo) GetByCallID(ctx context.Context, callID string) (*models.Call, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, call_id, caller_id_name, caller_id_num, started_at, ended_at,
		 duration_s, unlocked, final_agent, cost_cents, hangup_cause, transcript, logs
		 FROM calls WHERE call_id = ?`, callID,
	))
}

func (r *callRepo) Update(ctx context.Context, call *models.Call) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE calls SET call_id = ?, caller_id_name = ?, caller_id_num = ?,
		 started_at = ?, ended_at = ?, duration_s = ?, unlocked = ?,
		 final_agent = ?, cost_cents = ?, hangup_cause = ?, transcript = ?, logs = ?
		 WHERE id = ?`,
		call.CallID, call.CallerIDName, call.CallerIDNum, call.StartedAt,
		call.EndedAt, call.DurationS, call.Unlocked, call.FinalAgent,
		call.CostCents, call.HangupCause, call.Transcript, call.Logs, call.ID,
	)
	if err != nil {
		return fmt.Errorf("updating call: %w", err)
	}
	return nil
}

func (r *callRepo) List(ctx context.Context, filter CallListFilter) ([]models.Call, int, error) {
	where := "1=1"
	args := []any{}

	switch filter.Status {
	case "active":
		where += " AND ended_at IS NULL"
	case "ended":
		where += " AND ended_at IS NOT NULL"
	}
	if filter.Search != "" {
		where += " AND (caller_id_name LIKE ? OR caller_id_num LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s)
	}
	if filter.StartDate != "" {
		where += " AND started_at >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND started_at <= ?"
		args = append(args, filter.EndDate)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM calls WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting calls: %w", err)
	}

	query := `SELECT id, call_id, caller_id_name, caller_id_num, started_at, ended_at,
		 duration_s, unlocked, final_agent, cost_cents, hangup_cause, transcript, logs
		 FROM calls WHERE ` + where + ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	calls, err := scanCalls(rows)
	if err != nil {
		return nil, 0, err
	}
	return calls, total, nil
}

func (r *callRepo) ListRecent(ctx context.Context, limit int) ([]models.Call, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, caller_id_name, caller_id_num, started_at, ended_at,
		 duration_s, unlocked, final_agent, cost_cents, hangup_cause, transcript, logs
		 FROM calls ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent calls: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

func (r *callRepo) ListActive(ctx context.Context) ([]models.Call, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, caller_id_name, caller_id_num, started_at, ended_at,
		 duration_s, unlocked, final_agent, cost_cents, hangup_cause, transcript, logs
		 FROM calls WHERE ended_at IS NULL ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing active calls: %w", err)
	}
	defer rows.Close()
	return scanCalls(rows)
}

func scanCalls(rows *sql.Rows) ([]models.Call, error) {
	var calls []models.Call
	for rows.Next() {
		var c models.Call
		if err := rows.Scan(&c.ID, &c.CallID, &c.CallerIDName, &c.CallerIDNum,
			&c.StartedAt, &c.EndedAt, &c.DurationS, &c.Unlocked, &c.FinalAgent,
			&c.CostCents, &c.HangupCause, &c.Transcript, &c.Logs); err != nil {
			return nil, fmt.Errorf("scanning call row: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call rows: %w", err)
	}
	return calls, nil
}

func (r *callRepo) scanOne(row *sql.Row) (*models.Call, error) {
	var c models.Call
	err := row.Scan(&c.ID, &c.CallID, &c.CallerIDName, &c.CallerIDNum,
		&c.StartedAt, &c.EndedAt, &c.DurationS, &c.Unlocked, &c.FinalAgent,
		&c.CostCents, &c.HangupCause, &c.Transcript, &c.Logs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call: %w", err)
	}
	return &c, nil
}
