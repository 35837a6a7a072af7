package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jw6ventures/sellerpulse/internal/marketplace"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func testAccount(id, userID int64, seller string) store.Account {
	return store.Account{
		ID:             id,
		UserID:         userID,
		SellerID:       seller,
		DisplayName:    seller,
		AccessToken:    "tok-" + seller,
		RefreshToken:   "rt-" + seller,
		TokenExpiresAt: testNow.Add(12 * time.Hour),
		Active:         true,
	}
}

func orderPage(start, n int) []marketplace.Order {
	page := make([]marketplace.Order, n)
	for i := 0; i < n; i++ {
		page[i] = marketplace.Order{
			OrderID:   fmt.Sprintf("ord-%d", start+i),
			OrderNo:   fmt.Sprintf("N%d", start+i),
			Statuses:  []string{"shipped"},
			Price:     9.99,
			CreatedAt: testNow.Add(-time.Hour).UnixMilli(),
			Raw:       json.RawMessage(`{}`),
		}
	}
	return page
}

func TestSyncOrdersPaginatesUntilShortPage(t *testing.T) {
	up := &fakeUpstream{
		ordersFn: func(token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error) {
			if limit != marketplace.PageSize {
				t.Errorf("limit = %d, want %d", limit, marketplace.PageSize)
			}
			switch offset {
			case 0, 100:
				return orderPage(offset, 100), nil
			case 200:
				return orderPage(offset, 50), nil
			default:
				t.Errorf("unexpected offset %d", offset)
				return nil, nil
			}
		},
	}
	accounts := &fakeAccounts{accounts: []store.Account{testAccount(1, 7, "SELLER-A")}}
	runs := newFakeRuns(fixedNow)
	orders := newFakeOrders()
	svc := newTestService(up, accounts, runs, orders, newFakeCampaigns(), newFakeMetrics(), fixedNow)

	res, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{})
	if err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}
	if up.orderCalls != 3 {
		t.Errorf("order page requests = %d, want 3", up.orderCalls)
	}
	if res.TotalSynced != 250 {
		t.Errorf("TotalSynced = %d, want 250", res.TotalSynced)
	}
	if len(orders.rows) != 250 {
		t.Errorf("cached %d distinct orders, want 250", len(orders.rows))
	}
	if len(res.Accounts) != 1 || res.Accounts[0].Status != StatusSuccess {
		t.Fatalf("account result = %+v", res.Accounts)
	}
}

func TestSyncOrdersExactPageBoundary(t *testing.T) {
	// Exactly 200 orders means the third request returns an empty page; the
	// loop must still terminate without a fourth.
	up := &fakeUpstream{
		ordersFn: func(token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error) {
			if offset < 200 {
				return orderPage(offset, 100), nil
			}
			return nil, nil
		},
	}
	accounts := &fakeAccounts{accounts: []store.Account{testAccount(1, 7, "SELLER-A")}}
	orders := newFakeOrders()
	svc := newTestService(up, accounts, newFakeRuns(fixedNow), orders, newFakeCampaigns(), newFakeMetrics(), fixedNow)

	res, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{})
	if err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}
	if up.orderCalls != 3 {
		t.Errorf("order page requests = %d, want 3", up.orderCalls)
	}
	if res.TotalSynced != 200 {
		t.Errorf("TotalSynced = %d, want 200", res.TotalSynced)
	}
}

func TestSyncOrdersIdempotentReplay(t *testing.T) {
	up := &fakeUpstream{
		ordersFn: func(token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error) {
			if offset == 0 {
				return orderPage(0, 30), nil
			}
			return nil, nil
		},
	}
	accounts := &fakeAccounts{accounts: []store.Account{testAccount(1, 7, "SELLER-A")}}
	orders := newFakeOrders()
	svc := newTestService(up, accounts, newFakeRuns(fixedNow), orders, newFakeCampaigns(), newFakeMetrics(), fixedNow)

	for i := 0; i < 2; i++ {
		if _, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{}); err != nil {
			t.Fatalf("SyncOrders round %d: %v", i+1, err)
		}
	}
	if len(orders.rows) != 30 {
		t.Errorf("cached %d orders after replay, want 30", len(orders.rows))
	}
}

func TestSyncOrdersAccountIsolation(t *testing.T) {
	// Account A's refresh fails; B must still be synced and the call must not
	// return an error.
	a := testAccount(1, 7, "SELLER-A")
	a.TokenExpiresAt = testNow.Add(5 * time.Minute)
	b := testAccount(2, 7, "SELLER-B")

	up := &fakeUpstream{
		refreshFn: func(refreshToken string) (*marketplace.TokenPayload, error) {
			return nil, &marketplace.APIError{Code: "4002", Message: "refresh token expired"}
		},
		ordersFn: func(token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error) {
			if offset == 0 {
				return orderPage(0, 5), nil
			}
			return nil, nil
		},
	}
	accounts := &fakeAccounts{accounts: []store.Account{a, b}}
	runs := newFakeRuns(fixedNow)
	svc := newTestService(up, accounts, runs, newFakeOrders(), newFakeCampaigns(), newFakeMetrics(), fixedNow)

	res, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{})
	if err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}
	if len(res.Accounts) != 2 {
		t.Fatalf("got %d account results, want 2", len(res.Accounts))
	}
	if res.Accounts[0].Status != StatusFailed || res.Accounts[0].Error == "" {
		t.Errorf("account A result = %+v, want failed with error", res.Accounts[0])
	}
	if res.Accounts[1].Status != StatusSuccess || res.Accounts[1].RecordsSynced != 5 {
		t.Errorf("account B result = %+v, want success with 5 records", res.Accounts[1])
	}

	ledger := runs.byKind(store.KindOrders)
	if len(ledger) != 2 {
		t.Fatalf("got %d ledger rows, want 2", len(ledger))
	}
	if ledger[0].Status != store.RunFailed || ledger[0].ErrorMessage == "" {
		t.Errorf("A ledger row = %+v, want failed with message", ledger[0])
	}
	if ledger[1].Status != store.RunCompleted || ledger[1].RecordsSynced != 5 {
		t.Errorf("B ledger row = %+v, want completed with 5 records", ledger[1])
	}
}

func TestSyncOrdersLedgerRowPerAccount(t *testing.T) {
	accounts := &fakeAccounts{accounts: []store.Account{
		testAccount(1, 7, "SELLER-A"),
		testAccount(2, 7, "SELLER-B"),
	}}
	runs := newFakeRuns(fixedNow)
	svc := newTestService(&fakeUpstream{}, accounts, runs, newFakeOrders(), newFakeCampaigns(), newFakeMetrics(), fixedNow)

	if _, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{DaysBack: 14}); err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}

	ledger := runs.byKind(store.KindOrders)
	if len(ledger) != 2 {
		t.Fatalf("got %d ledger rows, want 2", len(ledger))
	}
	for _, r := range ledger {
		if r.Status != store.RunCompleted {
			t.Errorf("run %d status = %q, want %q", r.ID, r.Status, store.RunCompleted)
		}
		if r.CompletedAt == nil {
			t.Errorf("run %d has no completed_at", r.ID)
		}
		if r.AccountID == nil {
			t.Errorf("run %d has no account id", r.ID)
		}
		if !strings.Contains(string(r.Params), `"daysBack":14`) {
			t.Errorf("run %d params = %s, want daysBack recorded", r.ID, r.Params)
		}
	}
}

func TestSyncOrdersRejectsConcurrentRun(t *testing.T) {
	acct := testAccount(1, 7, "SELLER-A")
	runs := newFakeRuns(fixedNow)
	if _, err := runs.Open(context.Background(), store.SyncRun{UserID: 7, AccountID: &acct.ID, Kind: store.KindOrders}); err != nil {
		t.Fatal(err)
	}

	up := &fakeUpstream{}
	svc := newTestService(up, &fakeAccounts{accounts: []store.Account{acct}}, runs, newFakeOrders(), newFakeCampaigns(), newFakeMetrics(), fixedNow)

	res, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{})
	if err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}
	if res.Accounts[0].Status != StatusFailed {
		t.Errorf("status = %q, want %q", res.Accounts[0].Status, StatusFailed)
	}
	if res.Accounts[0].Error != ErrSyncInProgress.Error() {
		t.Errorf("error = %q, want %q", res.Accounts[0].Error, ErrSyncInProgress)
	}
	if up.orderCalls != 0 {
		t.Errorf("upstream was called %d times despite open run", up.orderCalls)
	}
	if len(runs.runs) != 1 {
		t.Errorf("a second ledger row was opened")
	}
}

func TestSyncOrdersNoAccounts(t *testing.T) {
	svc := newTestService(&fakeUpstream{}, &fakeAccounts{}, newFakeRuns(fixedNow), newFakeOrders(), newFakeCampaigns(), newFakeMetrics(), fixedNow)

	if _, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{}); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("err = %v, want ErrNoAccounts", err)
	}
}

func TestSyncOrdersSingleAccountFilter(t *testing.T) {
	accounts := &fakeAccounts{accounts: []store.Account{
		testAccount(1, 7, "SELLER-A"),
		testAccount(2, 7, "SELLER-B"),
	}}
	up := &fakeUpstream{}
	svc := newTestService(up, accounts, newFakeRuns(fixedNow), newFakeOrders(), newFakeCampaigns(), newFakeMetrics(), fixedNow)

	target := int64(2)
	res, err := svc.SyncOrders(context.Background(), 7, &target, OrdersOptions{})
	if err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}
	if len(res.Accounts) != 1 || res.Accounts[0].AccountID != 2 {
		t.Errorf("accounts = %+v, want only account 2", res.Accounts)
	}

	missing := int64(99)
	if _, err := svc.SyncOrders(context.Background(), 7, &missing, OrdersOptions{}); !errors.Is(err, ErrNoAccounts) {
		t.Errorf("unknown account err = %v, want ErrNoAccounts", err)
	}
}

func TestSyncOrdersPartialPageFailure(t *testing.T) {
	// Page two blows up mid-run. Page one's rows stay cached and the ledger
	// records the partial count with a failed status.
	up := &fakeUpstream{
		ordersFn: func(token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error) {
			if offset == 0 {
				return orderPage(0, 100), nil
			}
			return nil, &marketplace.TransportError{Path: "/orders/search", StatusCode: 503}
		},
	}
	orders := newFakeOrders()
	runs := newFakeRuns(fixedNow)
	svc := newTestService(up, &fakeAccounts{accounts: []store.Account{testAccount(1, 7, "SELLER-A")}}, runs, orders, newFakeCampaigns(), newFakeMetrics(), fixedNow)

	res, err := svc.SyncOrders(context.Background(), 7, nil, OrdersOptions{})
	if err != nil {
		t.Fatalf("SyncOrders: %v", err)
	}
	if res.Accounts[0].Status != StatusFailed {
		t.Errorf("status = %q, want failed", res.Accounts[0].Status)
	}
	if len(orders.rows) != 100 {
		t.Errorf("cached %d orders, want the 100 committed before the failure", len(orders.rows))
	}
	ledger := runs.byKind(store.KindOrders)
	if ledger[0].RecordsSynced != 100 {
		t.Errorf("ledger records = %d, want 100", ledger[0].RecordsSynced)
	}
}

func TestSyncCampaignMetricsWindow(t *testing.T) {
	acct := testAccount(1, 7, "SELLER-A")
	up := &fakeUpstream{
		reportFn: func(token string, date time.Time) ([]marketplace.CampaignReportRow, error) {
			return []marketplace.CampaignReportRow{{
				CampaignID:  "camp-1",
				Impressions: 1000,
				Clicks:      50,
				Spend:       25.0,
			}}, nil
		},
	}
	metricsRepo := newFakeMetrics()
	// A pre-existing row outside the 7-day window must survive untouched.
	outside := testNow.AddDate(0, 0, -10).UTC().Truncate(24 * time.Hour)
	metricsRepo.rows[metricKey(acct.ID, "camp-1", outside)] = store.CampaignMetric{
		AccountID: acct.ID, CampaignID: "camp-1", MetricDate: outside, Impressions: 42,
	}

	svc := newTestService(up, &fakeAccounts{accounts: []store.Account{acct}}, newFakeRuns(fixedNow), newFakeOrders(), newFakeCampaigns(), metricsRepo, fixedNow)

	res, err := svc.SyncCampaignMetrics(context.Background(), 7, nil, MetricsOptions{})
	if err != nil {
		t.Fatalf("SyncCampaignMetrics: %v", err)
	}
	if len(res.DatesProcessed) != DefaultMetricsDaysBack {
		t.Fatalf("processed %d dates, want %d", len(res.DatesProcessed), DefaultMetricsDaysBack)
	}
	if res.DatesProcessed[0] != "2024-06-15" || res.DatesProcessed[6] != "2024-06-09" {
		t.Errorf("dates = %v, want today back through 2024-06-09", res.DatesProcessed)
	}
	if res.TotalSynced != 7 {
		t.Errorf("TotalSynced = %d, want 7", res.TotalSynced)
	}
	if got := metricsRepo.rows[metricKey(acct.ID, "camp-1", outside)]; got.Impressions != 42 {
		t.Errorf("out-of-window row was touched: %+v", got)
	}
	if len(metricsRepo.rows) != 8 {
		t.Errorf("metric rows = %d, want 7 in-window plus 1 preserved", len(metricsRepo.rows))
	}
}

func TestSyncCampaignMetricsDayFailureFailsRun(t *testing.T) {
	up := &fakeUpstream{
		reportFn: func(token string, date time.Time) ([]marketplace.CampaignReportRow, error) {
			if date.Format("2006-01-02") == "2024-06-13" {
				return nil, &marketplace.APIError{Code: "500", Message: "report unavailable"}
			}
			return []marketplace.CampaignReportRow{{CampaignID: "camp-1"}}, nil
		},
	}
	metricsRepo := newFakeMetrics()
	runs := newFakeRuns(fixedNow)
	svc := newTestService(up, &fakeAccounts{accounts: []store.Account{testAccount(1, 7, "SELLER-A")}}, runs, newFakeOrders(), newFakeCampaigns(), metricsRepo, fixedNow)

	res, err := svc.SyncCampaignMetrics(context.Background(), 7, nil, MetricsOptions{})
	if err != nil {
		t.Fatalf("SyncCampaignMetrics: %v", err)
	}
	if res.Accounts[0].Status != StatusFailed {
		t.Errorf("status = %q, want failed", res.Accounts[0].Status)
	}
	// The two days before the failure stay committed.
	if len(metricsRepo.rows) != 2 {
		t.Errorf("metric rows = %d, want 2 committed before the failing day", len(metricsRepo.rows))
	}
	ledger := runs.byKind(store.KindCampaignMetrics)
	if ledger[0].Status != store.RunFailed || !strings.Contains(ledger[0].ErrorMessage, "2024-06-13") {
		t.Errorf("ledger row = %+v, want failed naming the day", ledger[0])
	}
}

func TestSyncCampaigns(t *testing.T) {
	up := &fakeUpstream{
		campaignsFn: func(token string, offset, limit int) ([]marketplace.Campaign, error) {
			if offset > 0 {
				return nil, nil
			}
			return []marketplace.Campaign{
				{CampaignID: "camp-1", Name: "Summer", Status: "active", DailyBudget: 50.0},
				{CampaignID: "camp-2", Name: "Clearance", Status: "paused", DailyBudget: "1.5K"},
			}, nil
		},
	}
	campaigns := newFakeCampaigns()
	svc := newTestService(up, &fakeAccounts{accounts: []store.Account{testAccount(1, 7, "SELLER-A")}}, newFakeRuns(fixedNow), newFakeOrders(), campaigns, newFakeMetrics(), fixedNow)

	res, err := svc.SyncCampaigns(context.Background(), 7, nil)
	if err != nil {
		t.Fatalf("SyncCampaigns: %v", err)
	}
	if res.TotalSynced != 2 {
		t.Errorf("TotalSynced = %d, want 2", res.TotalSynced)
	}
	if got := campaigns.rows["1|camp-2"]; got.DailyBudget != 1500 {
		t.Errorf("camp-2 budget = %v, want 1500 from %q", got.DailyBudget, "1.5K")
	}
}

func TestSyncAllRunsStagesInOrder(t *testing.T) {
	var stages []string
	up := &fakeUpstream{
		ordersFn: func(token string, createdAfter time.Time, offset, limit int) ([]marketplace.Order, error) {
			stages = append(stages, "orders")
			return nil, nil
		},
		campaignsFn: func(token string, offset, limit int) ([]marketplace.Campaign, error) {
			stages = append(stages, "campaigns")
			return nil, nil
		},
		reportFn: func(token string, date time.Time) ([]marketplace.CampaignReportRow, error) {
			stages = append(stages, "metrics")
			return nil, nil
		},
	}
	runs := newFakeRuns(fixedNow)
	svc := newTestService(up, &fakeAccounts{accounts: []store.Account{testAccount(1, 7, "SELLER-A")}}, runs, newFakeOrders(), newFakeCampaigns(), newFakeMetrics(), fixedNow)

	res, err := svc.SyncAll(context.Background(), 7, AllOptions{MetricsDaysBack: 1})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if res.Status != store.RunCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}
	want := []string{"orders", "campaigns", "metrics"}
	if len(stages) != 3 {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("stages = %v, want %v", stages, want)
		}
	}

	overall := runs.byKind(store.KindAll)
	if len(overall) != 1 || overall[0].Status != store.RunCompleted || overall[0].AccountID != nil {
		t.Errorf("overall ledger row = %+v, want one completed user-level row", overall)
	}
}

func TestSyncAllStageErrorAbortsRemaining(t *testing.T) {
	// With no linked accounts the orders stage fails its precondition; the
	// later stages must never start and the overall row closes failed.
	up := &fakeUpstream{}
	runs := newFakeRuns(fixedNow)
	svc := newTestService(up, &fakeAccounts{}, runs, newFakeOrders(), newFakeCampaigns(), newFakeMetrics(), fixedNow)

	res, err := svc.SyncAll(context.Background(), 7, AllOptions{})
	if err == nil {
		t.Fatal("SyncAll returned nil error")
	}
	if !errors.Is(err, ErrNoAccounts) {
		t.Errorf("err = %v, want wrapped ErrNoAccounts", err)
	}
	if res.Status != store.RunFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	if res.Campaigns != nil || res.Metrics != nil {
		t.Errorf("later stages ran: %+v", res)
	}

	overall := runs.byKind(store.KindAll)
	if len(overall) != 1 || overall[0].Status != store.RunFailed {
		t.Errorf("overall ledger row = %+v, want one failed row", overall)
	}
}
