package api

import (
	"errors"
	"net/http"
	"time"

	httperrors "github.com/jw6ventures/sellerpulse/internal/http/errors"
	"github.com/jw6ventures/sellerpulse/internal/store"
	syncer "github.com/jw6ventures/sellerpulse/internal/sync"
)

type syncRequest struct {
	AccountID *int64 `json:"accountId" validate:"omitempty,gt=0"`
	DaysBack  int    `json:"daysBack" validate:"omitempty,gte=1,lte=90"`
}

type syncAllRequest struct {
	OrdersDaysBack  int `json:"ordersDaysBack" validate:"omitempty,gte=1,lte=90"`
	MetricsDaysBack int `json:"metricsDaysBack" validate:"omitempty,gte=1,lte=90"`
}

// SyncOrders triggers an order pull for the user's accounts.
func (h *Handler) SyncOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	res, err := h.syncSvc.SyncOrders(r.Context(), user.ID, req.AccountID, syncer.OrdersOptions{DaysBack: req.DaysBack})
	if err != nil {
		h.syncError(w, r, err, "sync orders")
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

// SyncCampaigns triggers a campaign list pull.
func (h *Handler) SyncCampaigns(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	res, err := h.syncSvc.SyncCampaigns(r.Context(), user.ID, req.AccountID)
	if err != nil {
		h.syncError(w, r, err, "sync campaigns")
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

// SyncCampaignMetrics triggers a per-day campaign report pull.
func (h *Handler) SyncCampaignMetrics(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	res, err := h.syncSvc.SyncCampaignMetrics(r.Context(), user.ID, req.AccountID, syncer.MetricsOptions{DaysBack: req.DaysBack})
	if err != nil {
		h.syncError(w, r, err, "sync campaign metrics")
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

// SyncAll runs the full pipeline. Stage failures surface in the response body
// with a 200; only precondition failures map to error statuses.
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req syncAllRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	res, err := h.syncSvc.SyncAll(r.Context(), user.ID, syncer.AllOptions{
		OrdersDaysBack:  req.OrdersDaysBack,
		MetricsDaysBack: req.MetricsDaysBack,
	})
	if err != nil && res == nil {
		h.syncError(w, r, err, "sync all")
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

func (h *Handler) syncError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, syncer.ErrNoAccounts):
		httperrors.JSON(w, r, http.StatusPreconditionFailed, "no marketplace accounts linked")
	case errors.Is(err, syncer.ErrSyncInProgress):
		httperrors.ConflictError(w, r, err.Error())
	default:
		httperrors.InternalError(w, r, err, op)
	}
}

type runResponse struct {
	ID            int64      `json:"id"`
	AccountID     *int64     `json:"accountId,omitempty"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	RecordsSynced int        `json:"recordsSynced"`
	Error         string     `json:"error,omitempty"`
}

func toRunResponse(run store.SyncRun) runResponse {
	return runResponse{
		ID:            run.ID,
		AccountID:     run.AccountID,
		Kind:          run.Kind,
		Status:        run.Status,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		RecordsSynced: run.RecordsSynced,
		Error:         run.ErrorMessage,
	}
}

// SyncStatus reports the last run per kind, the recent ledger, and cache row
// counts in one response.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	lastRuns := map[string]*runResponse{}
	for _, kind := range []string{store.KindOrders, store.KindCampaigns, store.KindCampaignMetrics, store.KindAll} {
		run, err := h.store.SyncRuns.LastRun(ctx, user.ID, kind)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				lastRuns[kind] = nil
				continue
			}
			httperrors.InternalError(w, r, err, "load last run")
			return
		}
		rr := toRunResponse(*run)
		lastRuns[kind] = &rr
	}

	recent, err := h.store.SyncRuns.ListRecent(ctx, user.ID, 20)
	if err != nil {
		httperrors.InternalError(w, r, err, "load recent runs")
		return
	}
	recentOut := make([]runResponse, 0, len(recent))
	for _, run := range recent {
		recentOut = append(recentOut, toRunResponse(run))
	}

	orderCount, err := h.store.Orders.CountByUser(ctx, user.ID)
	if err != nil {
		httperrors.InternalError(w, r, err, "count orders")
		return
	}
	campaignCount, err := h.store.Campaigns.CountByUser(ctx, user.ID)
	if err != nil {
		httperrors.InternalError(w, r, err, "count campaigns")
		return
	}
	metricCount, err := h.store.CampaignMetrics.CountByUser(ctx, user.ID)
	if err != nil {
		httperrors.InternalError(w, r, err, "count campaign metrics")
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"lastRuns":   lastRuns,
		"recentRuns": recentOut,
		"cacheCounts": map[string]int64{
			"orders":          orderCount,
			"campaigns":       campaignCount,
			"campaignMetrics": metricCount,
		},
	})
}

// SyncRuns lists the recent ledger.
func (h *Handler) SyncRuns(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	_, limit := h.parsePagination(r)
	runs, err := h.store.SyncRuns.ListRecent(r.Context(), user.ID, limit)
	if err != nil {
		httperrors.InternalError(w, r, err, "list sync runs")
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"runs": out})
}
