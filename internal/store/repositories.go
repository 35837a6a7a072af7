package store

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for dashboard users.
type UserRepository interface {
	UpsertOIDCUser(ctx context.Context, subject, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// APITokenRepository handles bearer token storage.
type APITokenRepository interface {
	Create(ctx context.Context, token APIToken) (*APIToken, error)
	GetByID(ctx context.Context, id int64) (*APIToken, error)
	ListByUser(ctx context.Context, userID int64) ([]APIToken, error)
	Revoke(ctx context.Context, userID, id int64) error
	TouchLastUsed(ctx context.Context, id int64) error
}

// AccountRepository manages linked marketplace seller accounts. Link upserts
// on the (user, seller) pair so re-linking the same seller overwrites the
// existing row instead of duplicating it.
type AccountRepository interface {
	Link(ctx context.Context, acct Account) (*Account, error)
	GetByID(ctx context.Context, userID, id int64) (*Account, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]Account, error)
	UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	Deactivate(ctx context.Context, userID, id int64) error
}

// SyncRunRepository is the append-only ledger of sync attempts.
type SyncRunRepository interface {
	Open(ctx context.Context, run SyncRun) (*SyncRun, error)
	// Close records the terminal transition. Closing a run that is not in
	// the started state returns an error.
	Close(ctx context.Context, runID int64, status string, recordsSynced int, errorMessage string) error
	HasOpenRun(ctx context.Context, accountID int64, kind string) (bool, error)
	ListRecent(ctx context.Context, userID int64, limit int) ([]SyncRun, error)
	LastRun(ctx context.Context, userID int64, kind string) (*SyncRun, error)
	// MarkStale fails runs left in started state longer than olderThan,
	// reconciling rows orphaned by a crash or abrupt shutdown.
	MarkStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OrderRepository handles the cached-order table.
type OrderRepository interface {
	UpsertBatch(ctx context.Context, rows []Order) error
	List(ctx context.Context, userID int64, f OrderFilter) ([]Order, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}

// CampaignRepository handles the cached-campaign table.
type CampaignRepository interface {
	UpsertBatch(ctx context.Context, rows []Campaign) error
	List(ctx context.Context, userID int64, f CampaignFilter) ([]Campaign, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}

// CampaignMetricRepository handles the per-day campaign metric table.
type CampaignMetricRepository interface {
	UpsertBatch(ctx context.Context, rows []CampaignMetric) error
	List(ctx context.Context, userID int64, f MetricFilter) ([]CampaignMetric, error)
	CountByUser(ctx context.Context, userID int64) (int64, error)
}
