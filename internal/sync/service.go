package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jw6ventures/sellerpulse/internal/config"
	"github.com/jw6ventures/sellerpulse/internal/marketplace"
	"github.com/jw6ventures/sellerpulse/internal/metrics"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

// Upstream is the slice of the marketplace client the orchestrator uses.
type Upstream interface {
	tokenSource
	ListOrders(ctx context.Context, accessToken string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error)
	ListCampaigns(ctx context.Context, accessToken string, offset, limit int) ([]marketplace.Campaign, error)
	CampaignReport(ctx context.Context, accessToken string, date time.Time) ([]marketplace.CampaignReportRow, error)
}

// upsertBatchSize caps rows per upsert to bound statement size. Callers chunk;
// the store does not.
const upsertBatchSize = 100

// Per-account outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Default lookback windows, applied when a request leaves them unset.
const (
	DefaultOrdersDaysBack  = 30
	DefaultMetricsDaysBack = 7
)

// AccountResult is one account's outcome within a sync call.
type AccountResult struct {
	AccountID     int64  `json:"accountId"`
	SellerID      string `json:"sellerId"`
	Status        string `json:"status"`
	RecordsSynced int    `json:"recordsSynced"`
	Error         string `json:"error,omitempty"`
}

// Result aggregates per-account outcomes for one kind.
type Result struct {
	TotalSynced int             `json:"totalSynced"`
	Accounts    []AccountResult `json:"accounts"`
}

// MetricsResult additionally reports which calendar days were processed.
type MetricsResult struct {
	Result
	DatesProcessed []string `json:"datesProcessed"`
}

// AllResult is the composite outcome of a full sync. Stages run in fixed
// order and a stage error aborts the remaining stages, so later stages may be
// nil.
type AllResult struct {
	Orders    *Result        `json:"orders,omitempty"`
	Campaigns *Result        `json:"campaigns,omitempty"`
	Metrics   *MetricsResult `json:"campaignMetrics,omitempty"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// OrdersOptions controls an order sync.
type OrdersOptions struct {
	DaysBack int
}

// MetricsOptions controls a campaign-metrics sync.
type MetricsOptions struct {
	DaysBack int
}

// AllOptions controls a full sync.
type AllOptions struct {
	OrdersDaysBack  int
	MetricsDaysBack int
}

// Service coordinates pulling upstream data into the local cache. Accounts
// are processed sequentially to respect per-account upstream rate limits and
// keep failure attribution unambiguous; one ledger row per account per kind.
type Service struct {
	upstream  Upstream
	refresher *TokenRefresher
	accounts  store.AccountRepository
	runs      store.SyncRunRepository
	orders    store.OrderRepository
	campaigns store.CampaignRepository
	metrics   store.CampaignMetricRepository

	dayDelay time.Duration
	now      func() time.Time
}

func NewService(upstream Upstream, st *store.Store, cfg *config.Config) *Service {
	return &Service{
		upstream:  upstream,
		refresher: NewTokenRefresher(upstream, st.Accounts),
		accounts:  st.Accounts,
		runs:      st.SyncRuns,
		orders:    st.Orders,
		campaigns: st.Campaigns,
		metrics:   st.CampaignMetrics,
		dayDelay:  cfg.Sync.DayRequestDelay,
		now:       time.Now,
	}
}

// SyncOrders pulls recent orders for the user's accounts (one account when
// accountID is set). Individual account failures are recorded in the ledger
// and reported per account; the call itself fails only on a precondition
// violation such as an empty account set.
func (s *Service) SyncOrders(ctx context.Context, userID int64, accountID *int64, opts OrdersOptions) (*Result, error) {
	if opts.DaysBack <= 0 {
		opts.DaysBack = DefaultOrdersDaysBack
	}
	accounts, err := s.resolveAccounts(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for i := range accounts {
		acct := &accounts[i]
		outcome := s.runAccount(ctx, acct, store.KindOrders, runParams{"daysBack": opts.DaysBack}, func(token string) (int, error) {
			return s.pullOrders(ctx, acct, token, opts.DaysBack)
		})
		res.Accounts = append(res.Accounts, outcome)
		res.TotalSynced += outcome.RecordsSynced
	}
	return res, nil
}

// SyncCampaigns pulls the full campaign list for the user's accounts.
func (s *Service) SyncCampaigns(ctx context.Context, userID int64, accountID *int64) (*Result, error) {
	accounts, err := s.resolveAccounts(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for i := range accounts {
		acct := &accounts[i]
		outcome := s.runAccount(ctx, acct, store.KindCampaigns, nil, func(token string) (int, error) {
			return s.pullCampaigns(ctx, acct, token)
		})
		res.Accounts = append(res.Accounts, outcome)
		res.TotalSynced += outcome.RecordsSynced
	}
	return res, nil
}

// SyncCampaignMetrics pulls per-day campaign reports over the trailing
// lookback window, one calendar day per upstream call. A failing day fails
// the whole account's run; days already upserted stay committed.
func (s *Service) SyncCampaignMetrics(ctx context.Context, userID int64, accountID *int64, opts MetricsOptions) (*MetricsResult, error) {
	if opts.DaysBack <= 0 {
		opts.DaysBack = DefaultMetricsDaysBack
	}
	accounts, err := s.resolveAccounts(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	res := &MetricsResult{}
	seen := map[string]bool{}
	for i := range accounts {
		acct := &accounts[i]
		var dates []string
		outcome := s.runAccount(ctx, acct, store.KindCampaignMetrics, runParams{"daysBack": opts.DaysBack}, func(token string) (int, error) {
			var n int
			var err error
			n, dates, err = s.pullMetrics(ctx, acct, token, opts.DaysBack)
			return n, err
		})
		res.Accounts = append(res.Accounts, outcome)
		res.TotalSynced += outcome.RecordsSynced
		for _, d := range dates {
			if !seen[d] {
				seen[d] = true
				res.DatesProcessed = append(res.DatesProcessed, d)
			}
		}
	}
	return res, nil
}

// SyncAll runs orders, campaigns and campaign metrics in fixed sequence. The
// overall outcome is recorded in the ledger as a user-level row regardless of
// stage failures; a stage error aborts the remaining stages. This asymmetry
// with per-account isolation is deliberate: stages share one invocation and
// one overall status, accounts do not.
func (s *Service) SyncAll(ctx context.Context, userID int64, opts AllOptions) (*AllResult, error) {
	params, _ := json.Marshal(map[string]any{
		"ordersDaysBack":  opts.OrdersDaysBack,
		"metricsDaysBack": opts.MetricsDaysBack,
	})
	overall, err := s.runs.Open(ctx, store.SyncRun{UserID: userID, Kind: store.KindAll, Params: params})
	if err != nil {
		return nil, fmt.Errorf("open overall sync run: %w", err)
	}

	res := &AllResult{Status: store.RunCompleted}
	stageErr := func() error {
		var err error
		if res.Orders, err = s.SyncOrders(ctx, userID, nil, OrdersOptions{DaysBack: opts.OrdersDaysBack}); err != nil {
			return fmt.Errorf("orders stage: %w", err)
		}
		if res.Campaigns, err = s.SyncCampaigns(ctx, userID, nil); err != nil {
			return fmt.Errorf("campaigns stage: %w", err)
		}
		if res.Metrics, err = s.SyncCampaignMetrics(ctx, userID, nil, MetricsOptions{DaysBack: opts.MetricsDaysBack}); err != nil {
			return fmt.Errorf("campaign metrics stage: %w", err)
		}
		return nil
	}()

	total := 0
	if res.Orders != nil {
		total += res.Orders.TotalSynced
	}
	if res.Campaigns != nil {
		total += res.Campaigns.TotalSynced
	}
	if res.Metrics != nil {
		total += res.Metrics.TotalSynced
	}

	if stageErr != nil {
		res.Status = store.RunFailed
		res.Error = stageErr.Error()
		if err := s.runs.Close(ctx, overall.ID, store.RunFailed, total, stageErr.Error()); err != nil {
			log.Printf("[ERROR] sync: close overall run %d: %v", overall.ID, err)
		}
		return res, stageErr
	}

	if err := s.runs.Close(ctx, overall.ID, store.RunCompleted, total, ""); err != nil {
		log.Printf("[ERROR] sync: close overall run %d: %v", overall.ID, err)
	}
	return res, nil
}

func (s *Service) resolveAccounts(ctx context.Context, userID int64, accountID *int64) ([]store.Account, error) {
	accounts, err := s.accounts.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	if accountID != nil {
		for _, a := range accounts {
			if a.ID == *accountID {
				return []store.Account{a}, nil
			}
		}
		return nil, ErrNoAccounts
	}

	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	return accounts, nil
}

type runParams map[string]any

// runAccount wraps one account's pull in a ledger row: open, pull, close with
// a terminal status. A failure here never propagates; sibling accounts always
// get their attempt.
func (s *Service) runAccount(ctx context.Context, acct *store.Account, kind string, params runParams, pull func(token string) (int, error)) AccountResult {
	result := AccountResult{AccountID: acct.ID, SellerID: acct.SellerID, Status: StatusFailed}
	start := s.now()

	open, err := s.runs.HasOpenRun(ctx, acct.ID, kind)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if open {
		result.Error = ErrSyncInProgress.Error()
		return result
	}

	var paramsJSON []byte
	if params != nil {
		paramsJSON, _ = json.Marshal(params)
	}
	run, err := s.runs.Open(ctx, store.SyncRun{UserID: acct.UserID, AccountID: &acct.ID, Kind: kind, Params: paramsJSON})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	token, err := s.refresher.EnsureFreshToken(ctx, acct)
	if err != nil {
		s.closeRun(ctx, run.ID, kind, store.RunFailed, 0, err.Error(), start)
		result.Error = err.Error()
		return result
	}

	count, pullErr := pull(token)
	result.RecordsSynced = count
	if pullErr != nil {
		log.Printf("[WARN] sync: %s for account %d (seller %s) failed after %d records: %v", kind, acct.ID, acct.SellerID, count, pullErr)
		s.closeRun(ctx, run.ID, kind, store.RunFailed, count, pullErr.Error(), start)
		result.Error = pullErr.Error()
		return result
	}

	s.closeRun(ctx, run.ID, kind, store.RunCompleted, count, "", start)
	result.Status = StatusSuccess
	return result
}

func (s *Service) closeRun(ctx context.Context, runID int64, kind, status string, records int, errMsg string, start time.Time) {
	if err := s.runs.Close(ctx, runID, status, records, errMsg); err != nil {
		log.Printf("[ERROR] sync: close run %d: %v", runID, err)
		return
	}
	metrics.ObserveSyncRun(kind, status, records, start)
}

// pullOrders pages through the order search endpoint until a short page
// signals exhaustion. Page N's rows are committed before page N+1 is fetched,
// so an interrupted run leaves a well-defined prefix cached.
func (s *Service) pullOrders(ctx context.Context, acct *store.Account, token string, daysBack int) (int, error) {
	createdAfter := s.now().AddDate(0, 0, -daysBack)

	total := 0
	for offset := 0; ; offset += marketplace.PageSize {
		page, err := s.upstream.ListOrders(ctx, token, createdAfter, offset, marketplace.PageSize)
		if err != nil {
			return total, err
		}

		rows := make([]store.Order, 0, len(page))
		for _, o := range page {
			rows = append(rows, mapOrder(acct, o))
		}
		n, err := s.upsertOrders(ctx, rows)
		total += n
		if err != nil {
			return total, err
		}

		// A full page always implies "maybe more".
		if len(page) < marketplace.PageSize {
			return total, nil
		}
	}
}

func (s *Service) pullCampaigns(ctx context.Context, acct *store.Account, token string) (int, error) {
	total := 0
	for offset := 0; ; offset += marketplace.PageSize {
		page, err := s.upstream.ListCampaigns(ctx, token, offset, marketplace.PageSize)
		if err != nil {
			return total, err
		}

		rows := make([]store.Campaign, 0, len(page))
		for _, c := range page {
			rows = append(rows, mapCampaign(acct, c))
		}
		for start := 0; start < len(rows); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(rows))
			if err := s.campaigns.UpsertBatch(ctx, rows[start:end]); err != nil {
				return total, err
			}
			total += end - start
		}

		if len(page) < marketplace.PageSize {
			return total, nil
		}
	}
}

// pullMetrics walks the trailing window one calendar day at a time, today
// first. Every day in the window is attempted exactly once; a short fixed
// delay between day requests throttles the upstream.
func (s *Service) pullMetrics(ctx context.Context, acct *store.Account, token string, daysBack int) (int, []string, error) {
	total := 0
	var dates []string

	for i := 0; i < daysBack; i++ {
		day := s.now().AddDate(0, 0, -i).UTC().Truncate(24 * time.Hour)

		report, err := s.upstream.CampaignReport(ctx, token, day)
		if err != nil {
			return total, dates, fmt.Errorf("report for %s: %w", day.Format("2006-01-02"), err)
		}

		rows := make([]store.CampaignMetric, 0, len(report))
		for _, r := range report {
			rows = append(rows, mapMetricRow(acct, day, r))
		}
		for start := 0; start < len(rows); start += upsertBatchSize {
			end := min(start+upsertBatchSize, len(rows))
			if err := s.metrics.UpsertBatch(ctx, rows[start:end]); err != nil {
				return total, dates, err
			}
			total += end - start
		}
		dates = append(dates, day.Format("2006-01-02"))

		if i < daysBack-1 && s.dayDelay > 0 {
			select {
			case <-ctx.Done():
				return total, dates, ctx.Err()
			case <-time.After(s.dayDelay):
			}
		}
	}
	return total, dates, nil
}

func (s *Service) upsertOrders(ctx context.Context, rows []store.Order) (int, error) {
	total := 0
	for start := 0; start < len(rows); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(rows))
		if err := s.orders.UpsertBatch(ctx, rows[start:end]); err != nil {
			return total, err
		}
		total += end - start
	}
	return total, nil
}
