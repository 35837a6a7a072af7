package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jw6ventures/sellerpulse/internal/auth"
	"github.com/jw6ventures/sellerpulse/internal/cache"
	"github.com/jw6ventures/sellerpulse/internal/config"
	httperrors "github.com/jw6ventures/sellerpulse/internal/http/errors"
	"github.com/jw6ventures/sellerpulse/internal/marketplace"
	"github.com/jw6ventures/sellerpulse/internal/store"
	syncer "github.com/jw6ventures/sellerpulse/internal/sync"
)

const defaultPageSize = 50

// SyncService is the slice of the sync orchestrator the handlers call.
type SyncService interface {
	SyncOrders(ctx context.Context, userID int64, accountID *int64, opts syncer.OrdersOptions) (*syncer.Result, error)
	SyncCampaigns(ctx context.Context, userID int64, accountID *int64) (*syncer.Result, error)
	SyncCampaignMetrics(ctx context.Context, userID int64, accountID *int64, opts syncer.MetricsOptions) (*syncer.MetricsResult, error)
	SyncAll(ctx context.Context, userID int64, opts syncer.AllOptions) (*syncer.AllResult, error)
}

// CodeExchanger is the slice of the marketplace client used when linking an
// account.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code string) (*marketplace.TokenPayload, error)
}

// TokenMinter is the slice of the auth service that creates bearer tokens.
type TokenMinter interface {
	MintAPIToken(ctx context.Context, userID int64, label string, ttl time.Duration) (*store.APIToken, string, error)
}

// Handler serves the JSON API.
type Handler struct {
	cfg       *config.Config
	store     *store.Store
	minter    TokenMinter
	syncSvc   SyncService
	exchanger CodeExchanger
	validate  *validator.Validate

	mu            sync.Mutex
	accountCaches map[int64]*cache.Value[[]store.Account]
}

func NewHandler(cfg *config.Config, st *store.Store, minter TokenMinter, syncSvc SyncService, exchanger CodeExchanger) *Handler {
	return &Handler{
		cfg:           cfg,
		store:         st,
		minter:        minter,
		syncSvc:       syncSvc,
		exchanger:     exchanger,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		accountCaches: map[int64]*cache.Value[[]store.Account]{},
	}
}

// accountCache returns the per-user cached account list, creating it lazily.
func (h *Handler) accountCache(userID int64) *cache.Value[[]store.Account] {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.accountCaches[userID]
	if !ok {
		v = cache.NewValue(h.cfg.Sync.AccountCacheTTL, func(ctx context.Context) ([]store.Account, error) {
			return h.store.Accounts.ListActiveByUser(ctx, userID)
		})
		h.accountCaches[userID] = v
	}
	return v
}

func (h *Handler) invalidateAccounts(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.accountCaches[userID]; ok {
		v.Invalidate()
	}
}

// currentUser pulls the authenticated user placed in the context by the auth
// middleware.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		httperrors.JSON(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return user, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		httperrors.LogError(r, "encode response", err)
	}
}

// decodeBody decodes and validates a JSON request body. An empty body leaves
// the destination at its zero value.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			httperrors.BadRequestError(w, r, err, "invalid request body")
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = defaultPageSize

	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	return
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// queryAccountID parses an optional accountId query parameter.
func queryAccountID(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("accountId")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
