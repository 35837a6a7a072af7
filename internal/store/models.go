package store

import "time"

// Sync kinds, one per category of upstream data.
const (
	KindOrders          = "orders"
	KindCampaigns       = "campaigns"
	KindCampaignMetrics = "campaign_metrics"
	// KindAll is the user-level row recording the overall outcome of a
	// full sync; it has no account id.
	KindAll = "all"
)

// Sync run statuses. A run transitions from started to exactly one of
// completed or failed, then never changes again.
const (
	RunStarted   = "started"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// User represents a person authenticated via OIDC.
type User struct {
	ID          int64
	OIDCSubject string
	Email       string
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// APIToken is a bearer credential for programmatic dashboard access.
type APIToken struct {
	ID         int64
	UserID     int64
	Label      string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

// Account is one linked marketplace seller credential owned by a user.
type Account struct {
	ID             int64
	UserID         int64
	SellerID       string
	DisplayName    string
	CountryCode    string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SyncRun is one audited attempt to pull one data kind for one account.
// AccountID is nil when the failure happened before an account could be
// resolved (e.g. a precondition error logged for diagnosis).
type SyncRun struct {
	ID            int64
	UserID        int64
	AccountID     *int64
	Kind          string
	Status        string
	StartedAt     time.Time
	CompletedAt   *time.Time
	RecordsSynced int
	ErrorMessage  string
	Params        []byte
}

// Order is a denormalized copy of one upstream order. Raw preserves the
// upstream payload verbatim for forward-compatibility.
type Order struct {
	ID             int64
	UserID         int64
	AccountID      int64
	OrderID        string
	OrderNo        string
	Status         string
	Price          float64
	Currency       string
	ItemCount      int
	OrderCreatedAt *time.Time
	OrderUpdatedAt *time.Time
	Raw            []byte
	SyncedAt       time.Time
}

// Campaign is a denormalized copy of one upstream ad campaign.
type Campaign struct {
	ID          int64
	UserID      int64
	AccountID   int64
	CampaignID  string
	Name        string
	Type        string
	Objective   string
	Status      string
	DailyBudget float64
	Raw         []byte
	SyncedAt    time.Time
}

// CampaignMetric is one (account, campaign, calendar day) performance row.
type CampaignMetric struct {
	ID             int64
	UserID         int64
	AccountID      int64
	CampaignID     string
	MetricDate     time.Time
	Spend          float64
	StoreRevenue   float64
	ProductRevenue float64
	Orders         int
	Units          int
	Impressions    int64
	Clicks         int64
	CTR            float64
	CPC            float64
	ROAS           float64
	ConversionRate float64
	Raw            []byte
	SyncedAt       time.Time
}

// OrderFilter narrows cached-order reads. Zero values mean "no filter".
type OrderFilter struct {
	AccountID *int64
	Status    string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// CampaignFilter narrows cached-campaign reads.
type CampaignFilter struct {
	AccountID *int64
	Status    string
	Page      int
	Limit     int
}

// MetricFilter narrows campaign-metric reads.
type MetricFilter struct {
	AccountID  *int64
	CampaignID string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}
