package database

import (
	"context"
	"time"

	"github.com/callgate/callgate/internal/database/models"
)

// CallListFilter specifies filtering and pagination for call list queries.
type CallListFilter struct {
	Limit     int
	Offset    int
	Search    string // matches caller_id_name or caller_id_num
	Status    string // "active", "ended", or "" for all
	StartDate string // RFC3339 or YYYY-MM-DD
	EndDate   string // RFC3339 or YYYY-MM-DD
}

// CallRepository manages call records: one row per accepted inbound call,
// covering its lifetime from accept to teardown.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id int64) (*models.Call, error)
	GetByCallID(ctx context.Context, callID string) (*models.Call, error)
	Update(ctx context.Context, call *models.Call) error
	List(ctx context.Context, filter CallListFilter) ([]models.Call, int, error)
	ListRecent(ctx context.Context, limit int) ([]models.Call, error)
	ListActive(ctx context.Context) ([]models.Call, error)
}

// BlacklistRepository manages blocked caller IDs.
type BlacklistRepository interface {
	Create(ctx context.Context, entry *models.Blacklist) error
	GetByCallerID(ctx context.Context, callerID string) (*models.Blacklist, error)
	List(ctx context.Context) ([]models.Blacklist, error)
	Delete(ctx context.Context, callerID string) error
}

// WhitelistRepository manages caller IDs exempt from gate checks.
type WhitelistRepository interface {
	Create(ctx context.Context, entry *models.Whitelist) error
	GetByCallerID(ctx context.Context, callerID string) (*models.Whitelist, error)
	List(ctx context.Context) ([]models.Whitelist, error)
	Delete(ctx context.Context, callerID string) error
}

// FailedUnlockRepository tracks failed security-gate unlock attempts, the
// basis for auto-promotion to the blacklist.
type FailedUnlockRepository interface {
	Create(ctx context.Context, entry *models.FailedUnlockCall) error
	CountSince(ctx context.Context, callerID string, since time.Time) (int, error)
	DeleteByCallerID(ctx context.Context, callerID string) error
}
