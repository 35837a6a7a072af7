package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jw6ventures/sellerpulse/internal/marketplace"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

// fakeUpstream implements Upstream with per-test function hooks. Nil hooks
// return empty pages.
type fakeUpstream struct {
	refreshFn   func(refreshToken string) (*marketplace.TokenPayload, error)
	ordersFn    func(token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error)
	campaignsFn func(token string, offset, limit int) ([]marketplace.Campaign, error)
	reportFn    func(token string, date time.Time) ([]marketplace.CampaignReportRow, error)

	refreshCalls int
	orderCalls   int
	reportDates  []string
}

func (f *fakeUpstream) RefreshToken(ctx context.Context, refreshToken string) (*marketplace.TokenPayload, error) {
	f.refreshCalls++
	if f.refreshFn == nil {
		return &marketplace.TokenPayload{AccessToken: "fresh", RefreshToken: "fresh-rt", ExpiresIn: 86400}, nil
	}
	return f.refreshFn(refreshToken)
}

func (f *fakeUpstream) ListOrders(ctx context.Context, token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error) {
	f.orderCalls++
	if f.ordersFn == nil {
		return nil, nil
	}
	return f.ordersFn(token, createdAfter, offset, limit)
}

func (f *fakeUpstream) ListCampaigns(ctx context.Context, token string, offset, limit int) ([]marketplace.Campaign, error) {
	if f.campaignsFn == nil {
		return nil, nil
	}
	return f.campaignsFn(token, offset, limit)
}

func (f *fakeUpstream) CampaignReport(ctx context.Context, token string, date time.Time) ([]marketplace.CampaignReportRow, error) {
	f.reportDates = append(f.reportDates, date.Format("2006-01-02"))
	if f.reportFn == nil {
		return nil, nil
	}
	return f.reportFn(token, date)
}

// fakeAccounts is an in-memory AccountRepository.
type fakeAccounts struct {
	accounts []store.Account
	updates  int
}

func (f *fakeAccounts) Link(ctx context.Context, acct store.Account) (*store.Account, error) {
	return nil, errors.New("not supported in fake")
}

func (f *fakeAccounts) GetByID(ctx context.Context, userID, id int64) (*store.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id && a.UserID == userID {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccounts) ListActiveByUser(ctx context.Context, userID int64) ([]store.Account, error) {
	var out []store.Account
	for _, a := range f.accounts {
		if a.UserID == userID && a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAccounts) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			f.accounts[i].AccessToken = accessToken
			f.accounts[i].RefreshToken = refreshToken
			f.accounts[i].TokenExpiresAt = expiresAt
			f.updates++
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeAccounts) Deactivate(ctx context.Context, userID, id int64) error {
	return errors.New("not supported in fake")
}

// fakeRuns is an in-memory SyncRunRepository enforcing the single-transition
// invariant the real ledger has.
type fakeRuns struct {
	nextID int64
	runs   []store.SyncRun
	now    func() time.Time
}

func newFakeRuns(now func() time.Time) *fakeRuns {
	return &fakeRuns{now: now}
}

func (f *fakeRuns) Open(ctx context.Context, run store.SyncRun) (*store.SyncRun, error) {
	f.nextID++
	run.ID = f.nextID
	run.Status = store.RunStarted
	run.StartedAt = f.now()
	f.runs = append(f.runs, run)
	return &run, nil
}

func (f *fakeRuns) Close(ctx context.Context, runID int64, status string, recordsSynced int, errorMessage string) error {
	for i := range f.runs {
		if f.runs[i].ID == runID {
			if f.runs[i].Status != store.RunStarted {
				return fmt.Errorf("run %d already closed", runID)
			}
			completed := f.now()
			f.runs[i].Status = status
			f.runs[i].RecordsSynced = recordsSynced
			f.runs[i].ErrorMessage = errorMessage
			f.runs[i].CompletedAt = &completed
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeRuns) HasOpenRun(ctx context.Context, accountID int64, kind string) (bool, error) {
	for _, r := range f.runs {
		if r.AccountID != nil && *r.AccountID == accountID && r.Kind == kind && r.Status == store.RunStarted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRuns) ListRecent(ctx context.Context, userID int64, limit int) ([]store.SyncRun, error) {
	var out []store.SyncRun
	for _, r := range f.runs {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRuns) LastRun(ctx context.Context, userID int64, kind string) (*store.SyncRun, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].UserID == userID && f.runs[i].Kind == kind {
			return &f.runs[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeRuns) MarkStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

// byKind returns the user's runs for one kind, oldest first.
func (f *fakeRuns) byKind(kind string) []store.SyncRun {
	var out []store.SyncRun
	for _, r := range f.runs {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// fakeOrders is an in-memory OrderRepository keyed like the real table.
type fakeOrders struct {
	rows    map[string]store.Order
	upserts int
	failOn  func(row store.Order) error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{rows: map[string]store.Order{}}
}

func (f *fakeOrders) UpsertBatch(ctx context.Context, rows []store.Order) error {
	f.upserts++
	for _, o := range rows {
		if f.failOn != nil {
			if err := f.failOn(o); err != nil {
				return err
			}
		}
		f.rows[fmt.Sprintf("%d|%s", o.AccountID, o.OrderID)] = o
	}
	return nil
}

func (f *fakeOrders) List(ctx context.Context, userID int64, filter store.OrderFilter) ([]store.Order, error) {
	return nil, errors.New("not supported in fake")
}

func (f *fakeOrders) CountByUser(ctx context.Context, userID int64) (int64, error) {
	return int64(len(f.rows)), nil
}

// fakeCampaigns is an in-memory CampaignRepository.
type fakeCampaigns struct {
	rows map[string]store.Campaign
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{rows: map[string]store.Campaign{}}
}

func (f *fakeCampaigns) UpsertBatch(ctx context.Context, rows []store.Campaign) error {
	for _, c := range rows {
		f.rows[fmt.Sprintf("%d|%s", c.AccountID, c.CampaignID)] = c
	}
	return nil
}

func (f *fakeCampaigns) List(ctx context.Context, userID int64, filter store.CampaignFilter) ([]store.Campaign, error) {
	return nil, errors.New("not supported in fake")
}

func (f *fakeCampaigns) CountByUser(ctx context.Context, userID int64) (int64, error) {
	return int64(len(f.rows)), nil
}

// fakeMetrics is an in-memory CampaignMetricRepository.
type fakeMetrics struct {
	rows map[string]store.CampaignMetric
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{rows: map[string]store.CampaignMetric{}}
}

func metricKey(accountID int64, campaignID string, date time.Time) string {
	return fmt.Sprintf("%d|%s|%s", accountID, campaignID, date.Format("2006-01-02"))
}

func (f *fakeMetrics) UpsertBatch(ctx context.Context, rows []store.CampaignMetric) error {
	for _, m := range rows {
		f.rows[metricKey(m.AccountID, m.CampaignID, m.MetricDate)] = m
	}
	return nil
}

func (f *fakeMetrics) List(ctx context.Context, userID int64, filter store.MetricFilter) ([]store.CampaignMetric, error) {
	return nil, errors.New("not supported in fake")
}

func (f *fakeMetrics) CountByUser(ctx context.Context, userID int64) (int64, error) {
	return int64(len(f.rows)), nil
}

// newTestService wires a Service over the fakes with a fixed clock and no
// day-request delay.
func newTestService(up *fakeUpstream, accounts *fakeAccounts, runs *fakeRuns, orders *fakeOrders, campaigns *fakeCampaigns, metricsRepo *fakeMetrics, now func() time.Time) *Service {
	refresher := NewTokenRefresher(up, accounts)
	refresher.now = now
	return &Service{
		upstream:  up,
		refresher: refresher,
		accounts:  accounts,
		runs:      runs,
		orders:    orders,
		campaigns: campaigns,
		metrics:   metricsRepo,
		dayDelay:  0,
		now:       now,
	}
}
