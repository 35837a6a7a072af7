package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// syncRunRepo implements SyncRunRepository.
type syncRunRepo struct {
	pool *pgxpool.Pool
}

const syncRunColumns = `id, user_id, account_id, kind, status, started_at, completed_at, records_synced, error_message, params`

func scanSyncRun(row pgx.Row) (*SyncRun, error) {
	var run SyncRun
	err := row.Scan(&run.ID, &run.UserID, &run.AccountID, &run.Kind, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.RecordsSynced, &run.ErrorMessage, &run.Params)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *syncRunRepo) Open(ctx context.Context, run SyncRun) (*SyncRun, error) {
	defer observeDB(ctx, "db.sync_runs.open")()
	params := run.Params
	if len(params) == 0 {
		params = []byte(`{}`)
	}
	const q = `INSERT INTO sync_runs (user_id, account_id, kind, params)
VALUES ($1, $2, $3, $4)
RETURNING ` + syncRunColumns

	opened, err := scanSyncRun(r.pool.QueryRow(ctx, q, run.UserID, run.AccountID, run.Kind, params))
	if err != nil {
		return nil, fmt.Errorf("open %s run: %w", run.Kind, err)
	}
	return opened, nil
}

func (r *syncRunRepo) Close(ctx context.Context, runID int64, status string, recordsSynced int, errorMessage string) error {
	defer observeDB(ctx, "db.sync_runs.close")()
	if status != RunCompleted && status != RunFailed {
		return fmt.Errorf("close run %d: invalid terminal status %q", runID, status)
	}

	// Guarded single transition: a run closes exactly once.
	const q = `UPDATE sync_runs
SET status = $2, records_synced = $3, error_message = $4, completed_at = NOW()
WHERE id = $1 AND status = 'started'`

	tag, err := r.pool.Exec(ctx, q, runID, status, recordsSynced, errorMessage)
	if err != nil {
		return fmt.Errorf("close run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close run %d: run is not open", runID)
	}
	return nil
}

func (r *syncRunRepo) HasOpenRun(ctx context.Context, accountID int64, kind string) (bool, error) {
	defer observeDB(ctx, "db.sync_runs.has_open")()
	const q = `SELECT EXISTS (
    SELECT 1 FROM sync_runs WHERE account_id = $1 AND kind = $2 AND status = 'started'
)`
	var exists bool
	if err := r.pool.QueryRow(ctx, q, accountID, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("check open run: %w", err)
	}
	return exists, nil
}

func (r *syncRunRepo) ListRecent(ctx context.Context, userID int64, limit int) ([]SyncRun, error) {
	defer observeDB(ctx, "db.sync_runs.list_recent")()
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *syncRunRepo) LastRun(ctx context.Context, userID int64, kind string) (*SyncRun, error) {
	defer observeDB(ctx, "db.sync_runs.last")()
	q := `SELECT ` + syncRunColumns + ` FROM sync_runs
WHERE user_id = $1 AND kind = $2 ORDER BY started_at DESC LIMIT 1`

	run, err := scanSyncRun(r.pool.QueryRow(ctx, q, userID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last %s run: %w", kind, err)
	}
	return run, nil
}

func (r *syncRunRepo) MarkStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	defer observeDB(ctx, "db.sync_runs.mark_stale")()
	const q = `UPDATE sync_runs
SET status = 'failed', error_message = 'run abandoned: no terminal status recorded', completed_at = NOW()
WHERE status = 'started' AND started_at < NOW() - $1::interval`

	interval := strconv.FormatInt(int64(olderThan/time.Second), 10) + " seconds"
	tag, err := r.pool.Exec(ctx, q, interval)
	if err != nil {
		return 0, fmt.Errorf("mark stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// orderRepo implements OrderRepository.
type orderRepo struct {
	pool *pgxpool.Pool
}

const upsertOrderSQL = `INSERT INTO cached_orders
(user_id, account_id, order_id, order_no, status, price, currency, item_count, order_created_at, order_updated_at, raw, synced_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
ON CONFLICT (account_id, order_id) DO UPDATE SET
    order_no = EXCLUDED.order_no,
    status = EXCLUDED.status,
    price = EXCLUDED.price,
    currency = EXCLUDED.currency,
    item_count = EXCLUDED.item_count,
    order_created_at = EXCLUDED.order_created_at,
    order_updated_at = EXCLUDED.order_updated_at,
    raw = EXCLUDED.raw,
    synced_at = NOW()`

func (r *orderRepo) UpsertBatch(ctx context.Context, rows []Order) error {
	if len(rows) == 0 {
		return nil
	}
	defer observeDB(ctx, "db.orders.upsert_batch")()

	b := &pgx.Batch{}
	for _, o := range rows {
		b.Queue(upsertOrderSQL, o.UserID, o.AccountID, o.OrderID, o.OrderNo, o.Status,
			o.Price, o.Currency, o.ItemCount, o.OrderCreatedAt, o.OrderUpdatedAt, rawOrEmpty(o.Raw))
	}
	return execBatch(ctx, r.pool, b, len(rows), "orders")
}

func (r *orderRepo) List(ctx context.Context, userID int64, f OrderFilter) ([]Order, error) {
	defer observeDB(ctx, "db.orders.list")()

	q := `SELECT id, user_id, account_id, order_id, order_no, status, price, currency, item_count,
order_created_at, order_updated_at, raw, synced_at
FROM cached_orders WHERE user_id = $1`
	args := []any{userID}

	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		q += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += ` AND order_created_at >= $` + strconv.Itoa(len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += ` AND order_created_at < $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY order_created_at DESC NULLS LAST`
	q += paginate(&args, f.Page, f.Limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.AccountID, &o.OrderID, &o.OrderNo, &o.Status,
			&o.Price, &o.Currency, &o.ItemCount, &o.OrderCreatedAt, &o.OrderUpdatedAt, &o.Raw, &o.SyncedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *orderRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	defer observeDB(ctx, "db.orders.count")()
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cached_orders WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// campaignRepo implements CampaignRepository.
type campaignRepo struct {
	pool *pgxpool.Pool
}

const upsertCampaignSQL = `INSERT INTO cached_campaigns
(user_id, account_id, campaign_id, name, campaign_type, objective, status, daily_budget, raw, synced_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
ON CONFLICT (account_id, campaign_id) DO UPDATE SET
    name = EXCLUDED.name,
    campaign_type = EXCLUDED.campaign_type,
    objective = EXCLUDED.objective,
    status = EXCLUDED.status,
    daily_budget = EXCLUDED.daily_budget,
    raw = EXCLUDED.raw,
    synced_at = NOW()`

func (r *campaignRepo) UpsertBatch(ctx context.Context, rows []Campaign) error {
	if len(rows) == 0 {
		return nil
	}
	defer observeDB(ctx, "db.campaigns.upsert_batch")()

	b := &pgx.Batch{}
	for _, c := range rows {
		b.Queue(upsertCampaignSQL, c.UserID, c.AccountID, c.CampaignID, c.Name,
			c.Type, c.Objective, c.Status, c.DailyBudget, rawOrEmpty(c.Raw))
	}
	return execBatch(ctx, r.pool, b, len(rows), "campaigns")
}

func (r *campaignRepo) List(ctx context.Context, userID int64, f CampaignFilter) ([]Campaign, error) {
	defer observeDB(ctx, "db.campaigns.list")()

	q := `SELECT id, user_id, account_id, campaign_id, name, campaign_type, objective, status, daily_budget, raw, synced_at
FROM cached_campaigns WHERE user_id = $1`
	args := []any{userID}

	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		q += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY name`
	q += paginate(&args, f.Page, f.Limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.UserID, &c.AccountID, &c.CampaignID, &c.Name,
			&c.Type, &c.Objective, &c.Status, &c.DailyBudget, &c.Raw, &c.SyncedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *campaignRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	defer observeDB(ctx, "db.campaigns.count")()
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cached_campaigns WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// campaignMetricRepo implements CampaignMetricRepository.
type campaignMetricRepo struct {
	pool *pgxpool.Pool
}

const upsertMetricSQL = `INSERT INTO cached_campaign_metrics
(user_id, account_id, campaign_id, metric_date, spend, store_revenue, product_revenue, orders, units,
impressions, clicks, ctr, cpc, roas, conversion_rate, raw, synced_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
ON CONFLICT (account_id, campaign_id, metric_date) DO UPDATE SET
    spend = EXCLUDED.spend,
    store_revenue = EXCLUDED.store_revenue,
    product_revenue = EXCLUDED.product_revenue,
    orders = EXCLUDED.orders,
    units = EXCLUDED.units,
    impressions = EXCLUDED.impressions,
    clicks = EXCLUDED.clicks,
    ctr = EXCLUDED.ctr,
    cpc = EXCLUDED.cpc,
    roas = EXCLUDED.roas,
    conversion_rate = EXCLUDED.conversion_rate,
    raw = EXCLUDED.raw,
    synced_at = NOW()`

func (r *campaignMetricRepo) UpsertBatch(ctx context.Context, rows []CampaignMetric) error {
	if len(rows) == 0 {
		return nil
	}
	defer observeDB(ctx, "db.campaign_metrics.upsert_batch")()

	b := &pgx.Batch{}
	for _, m := range rows {
		b.Queue(upsertMetricSQL, m.UserID, m.AccountID, m.CampaignID, m.MetricDate,
			m.Spend, m.StoreRevenue, m.ProductRevenue, m.Orders, m.Units,
			m.Impressions, m.Clicks, m.CTR, m.CPC, m.ROAS, m.ConversionRate, rawOrEmpty(m.Raw))
	}
	return execBatch(ctx, r.pool, b, len(rows), "campaign metrics")
}

func (r *campaignMetricRepo) List(ctx context.Context, userID int64, f MetricFilter) ([]CampaignMetric, error) {
	defer observeDB(ctx, "db.campaign_metrics.list")()

	q := `SELECT id, user_id, account_id, campaign_id, metric_date, spend, store_revenue, product_revenue,
orders, units, impressions, clicks, ctr, cpc, roas, conversion_rate, raw, synced_at
FROM cached_campaign_metrics WHERE user_id = $1`
	args := []any{userID}

	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		q += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		q += ` AND campaign_id = $` + strconv.Itoa(len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		q += ` AND metric_date >= $` + strconv.Itoa(len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		q += ` AND metric_date <= $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY metric_date DESC, campaign_id`
	q += paginate(&args, f.Page, f.Limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaign metrics: %w", err)
	}
	defer rows.Close()

	var metrics []CampaignMetric
	for rows.Next() {
		var m CampaignMetric
		if err := rows.Scan(&m.ID, &m.UserID, &m.AccountID, &m.CampaignID, &m.MetricDate,
			&m.Spend, &m.StoreRevenue, &m.ProductRevenue, &m.Orders, &m.Units,
			&m.Impressions, &m.Clicks, &m.CTR, &m.CPC, &m.ROAS, &m.ConversionRate, &m.Raw, &m.SyncedAt); err != nil {
			return nil, fmt.Errorf("scan campaign metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (r *campaignMetricRepo) CountByUser(ctx context.Context, userID int64) (int64, error) {
	defer observeDB(ctx, "db.campaign_metrics.count")()
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cached_campaign_metrics WHERE user_id = $1`, userID).Scan(&count)
	return count, err
}

// execBatch sends a queued batch and drains every result. Failures surface
// with the table name for operator diagnosis.
func execBatch(ctx context.Context, pool *pgxpool.Pool, b *pgx.Batch, n int, table string) error {
	results := pool.SendBatch(ctx, b)
	defer results.Close()

	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert %s batch (row %d of %d): %w", table, i+1, n, err)
		}
	}
	return nil
}

func rawOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return raw
}

func paginate(args *[]any, page, limit int) string {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	*args = append(*args, limit)
	clause := ` LIMIT $` + strconv.Itoa(len(*args))
	*args = append(*args, (page-1)*limit)
	clause += ` OFFSET $` + strconv.Itoa(len(*args))
	return clause
}
