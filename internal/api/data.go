package api

import (
	"net/http"
	"time"

	httperrors "github.com/jw6ventures/sellerpulse/internal/http/errors"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

type orderResponse struct {
	ID             int64      `json:"id"`
	AccountID      int64      `json:"accountId"`
	OrderID        string     `json:"orderId"`
	OrderNo        string     `json:"orderNo,omitempty"`
	Status         string     `json:"status"`
	Price          float64    `json:"price"`
	Currency       string     `json:"currency"`
	ItemCount      int        `json:"itemCount"`
	OrderCreatedAt *time.Time `json:"orderCreatedAt,omitempty"`
	SyncedAt       time.Time  `json:"syncedAt"`
}

// Orders reads cached orders, newest first across accounts.
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	filter, ok := h.orderFilter(w, r)
	if !ok {
		return
	}

	orders, err := h.store.Orders.List(r.Context(), user.ID, filter)
	if err != nil {
		httperrors.InternalError(w, r, err, "list orders")
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse{
			ID:             o.ID,
			AccountID:      o.AccountID,
			OrderID:        o.OrderID,
			OrderNo:        o.OrderNo,
			Status:         o.Status,
			Price:          o.Price,
			Currency:       o.Currency,
			ItemCount:      o.ItemCount,
			OrderCreatedAt: o.OrderCreatedAt,
			SyncedAt:       o.SyncedAt,
		})
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"orders": out,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

func (h *Handler) orderFilter(w http.ResponseWriter, r *http.Request) (store.OrderFilter, bool) {
	var filter store.OrderFilter
	var err error

	if filter.AccountID, err = queryAccountID(r); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid accountId")
		return filter, false
	}
	if filter.From, err = queryDate(r, "from"); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid from date, want YYYY-MM-DD")
		return filter, false
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid to date, want YYYY-MM-DD")
		return filter, false
	}
	filter.Status = r.URL.Query().Get("status")
	filter.Page, filter.Limit = h.parsePagination(r)
	return filter, true
}

type campaignResponse struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"accountId"`
	CampaignID  string    `json:"campaignId"`
	Name        string    `json:"name"`
	Type        string    `json:"type,omitempty"`
	Objective   string    `json:"objective,omitempty"`
	Status      string    `json:"status"`
	DailyBudget float64   `json:"dailyBudget"`
	SyncedAt    time.Time `json:"syncedAt"`
}

// Campaigns reads cached campaigns.
func (h *Handler) Campaigns(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var filter store.CampaignFilter
	var err error
	if filter.AccountID, err = queryAccountID(r); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid accountId")
		return
	}
	filter.Status = r.URL.Query().Get("status")
	filter.Page, filter.Limit = h.parsePagination(r)

	campaigns, err := h.store.Campaigns.List(r.Context(), user.ID, filter)
	if err != nil {
		httperrors.InternalError(w, r, err, "list campaigns")
		return
	}

	out := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, campaignResponse{
			ID:          c.ID,
			AccountID:   c.AccountID,
			CampaignID:  c.CampaignID,
			Name:        c.Name,
			Type:        c.Type,
			Objective:   c.Objective,
			Status:      c.Status,
			DailyBudget: c.DailyBudget,
			SyncedAt:    c.SyncedAt,
		})
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"campaigns": out,
		"page":      filter.Page,
		"limit":     filter.Limit,
	})
}

type metricResponse struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"accountId"`
	CampaignID     string    `json:"campaignId"`
	MetricDate     string    `json:"metricDate"`
	Spend          float64   `json:"spend"`
	StoreRevenue   float64   `json:"storeRevenue"`
	ProductRevenue float64   `json:"productRevenue"`
	Orders         int       `json:"orders"`
	Units          int       `json:"units"`
	Impressions    int64     `json:"impressions"`
	Clicks         int64     `json:"clicks"`
	CTR            float64   `json:"ctr"`
	CPC            float64   `json:"cpc"`
	ROAS           float64   `json:"roas"`
	ConversionRate float64   `json:"conversionRate"`
	SyncedAt       time.Time `json:"syncedAt"`
}

// CampaignMetrics reads cached per-day campaign performance rows.
func (h *Handler) CampaignMetrics(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var filter store.MetricFilter
	var err error
	if filter.AccountID, err = queryAccountID(r); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid accountId")
		return
	}
	if filter.From, err = queryDate(r, "from"); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid from date, want YYYY-MM-DD")
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid to date, want YYYY-MM-DD")
		return
	}
	filter.CampaignID = r.URL.Query().Get("campaignId")
	filter.Page, filter.Limit = h.parsePagination(r)

	rows, err := h.store.CampaignMetrics.List(r.Context(), user.ID, filter)
	if err != nil {
		httperrors.InternalError(w, r, err, "list campaign metrics")
		return
	}

	out := make([]metricResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, metricResponse{
			ID:             m.ID,
			AccountID:      m.AccountID,
			CampaignID:     m.CampaignID,
			MetricDate:     m.MetricDate.Format("2006-01-02"),
			Spend:          m.Spend,
			StoreRevenue:   m.StoreRevenue,
			ProductRevenue: m.ProductRevenue,
			Orders:         m.Orders,
			Units:          m.Units,
			Impressions:    m.Impressions,
			Clicks:         m.Clicks,
			CTR:            m.CTR,
			CPC:            m.CPC,
			ROAS:           m.ROAS,
			ConversionRate: m.ConversionRate,
			SyncedAt:       m.SyncedAt,
		})
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"metrics": out,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}
