package sync

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jw6ventures/sellerpulse/internal/marketplace"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

// defaultCurrency is applied when an upstream order carries no currency.
const defaultCurrency = "USD"

// primaryStatus picks the canonical status from an upstream status array: the
// first entry wins. This is a deliberate, named policy rather than inline
// indexing so it stays visible and testable.
func primaryStatus(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	return statuses[0]
}

// numericOrZero coerces loosely-typed upstream values to float64. nil,
// non-numeric garbage, NaN and infinities all become 0. Numeric strings
// parse, including the K/M suffix shorthand some report fields use
// ("1.5K" = 1500, "2M" = 2000000).
func numericOrZero(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return n
	case float32:
		return numericOrZero(float64(n))
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		return numericString(n)
	default:
		return 0
	}
}

func numericString(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	mult := 1.0
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1e3
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1e6
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f * mult
}

func mapOrder(acct *store.Account, o marketplace.Order) store.Order {
	currency := o.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	row := store.Order{
		UserID:    acct.UserID,
		AccountID: acct.ID,
		OrderID:   o.OrderID,
		OrderNo:   o.OrderNo,
		Status:    primaryStatus(o.Statuses),
		Price:     numericOrZero(o.Price),
		Currency:  currency,
		ItemCount: o.ItemCount,
		Raw:       o.Raw,
	}
	if o.CreatedAt > 0 {
		t := time.UnixMilli(o.CreatedAt).UTC()
		row.OrderCreatedAt = &t
	}
	if o.UpdatedAt > 0 {
		t := time.UnixMilli(o.UpdatedAt).UTC()
		row.OrderUpdatedAt = &t
	}
	return row
}

func mapCampaign(acct *store.Account, c marketplace.Campaign) store.Campaign {
	return store.Campaign{
		UserID:      acct.UserID,
		AccountID:   acct.ID,
		CampaignID:  c.CampaignID,
		Name:        c.Name,
		Type:        c.Type,
		Objective:   c.Objective,
		Status:      c.Status,
		DailyBudget: numericOrZero(c.DailyBudget),
		Raw:         c.Raw,
	}
}

func mapMetricRow(acct *store.Account, day time.Time, r marketplace.CampaignReportRow) store.CampaignMetric {
	spend := numericOrZero(r.Spend)
	storeRev := numericOrZero(r.StoreRevenue)
	productRev := numericOrZero(r.ProductRevenue)
	orders := numericOrZero(r.Orders)
	impressions := numericOrZero(r.Impressions)
	clicks := numericOrZero(r.Clicks)

	return store.CampaignMetric{
		UserID:         acct.UserID,
		AccountID:      acct.ID,
		CampaignID:     r.CampaignID,
		MetricDate:     day,
		Spend:          spend,
		StoreRevenue:   storeRev,
		ProductRevenue: productRev,
		Orders:         int(orders),
		Units:          int(numericOrZero(r.Units)),
		Impressions:    int64(impressions),
		Clicks:         int64(clicks),
		CTR:            ratio(clicks, impressions) * 100,
		CPC:            ratio(spend, clicks),
		ROAS:           ratio(storeRev+productRev, spend),
		ConversionRate: ratio(orders, clicks) * 100,
		Raw:            r.Raw,
	}
}

// ratio returns num/den, or 0 when the denominator is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
