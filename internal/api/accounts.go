package api

import (
	"errors"
	"net/http"
	"time"

	httperrors "github.com/jw6ventures/sellerpulse/internal/http/errors"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

type accountResponse struct {
	ID             int64     `json:"id"`
	SellerID       string    `json:"sellerId"`
	DisplayName    string    `json:"displayName"`
	CountryCode    string    `json:"countryCode,omitempty"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toAccountResponse(a store.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		SellerID:       a.SellerID,
		DisplayName:    a.DisplayName,
		CountryCode:    a.CountryCode,
		TokenExpiresAt: a.TokenExpiresAt,
		CreatedAt:      a.CreatedAt,
	}
}

// ListAccounts returns the user's linked accounts. The list is served from a
// short-lived cache; pass refresh=true to bypass it.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	force := r.URL.Query().Get("refresh") == "true"
	accounts, err := h.accountCache(user.ID).Get(r.Context(), force)
	if err != nil {
		httperrors.InternalError(w, r, err, "list accounts")
		return
	}

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"accounts": out})
}

type linkAccountRequest struct {
	Code        string `json:"code" validate:"required"`
	DisplayName string `json:"displayName" validate:"max=200"`
}

// LinkAccount exchanges a marketplace authorization code and stores the
// resulting seller credentials. Re-linking an already linked seller replaces
// its tokens instead of creating a duplicate.
func (h *Handler) LinkAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req linkAccountRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	payload, err := h.exchanger.ExchangeCode(r.Context(), req.Code)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "authorization code was rejected")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = payload.SellerName
	}
	if displayName == "" {
		displayName = payload.SellerID
	}

	acct, err := h.store.Accounts.Link(r.Context(), store.Account{
		UserID:         user.ID,
		SellerID:       payload.SellerID,
		DisplayName:    displayName,
		CountryCode:    payload.Country,
		AccessToken:    payload.AccessToken,
		RefreshToken:   payload.RefreshToken,
		TokenExpiresAt: time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
		Active:         true,
	})
	if err != nil {
		httperrors.InternalError(w, r, err, "link account")
		return
	}

	h.invalidateAccounts(user.ID)
	httperrors.LogInfo(r, "linked marketplace account "+acct.SellerID)
	h.writeJSON(w, r, http.StatusCreated, toAccountResponse(*acct))
}

// UnlinkAccount deactivates a linked account. Cached data is retained.
func (h *Handler) UnlinkAccount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid account id")
		return
	}

	if err := h.store.Accounts.Deactivate(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperrors.NotFoundError(w, r, "account not found")
			return
		}
		httperrors.InternalError(w, r, err, "unlink account")
		return
	}

	h.invalidateAccounts(user.ID)
	w.WriteHeader(http.StatusNoContent)
}
