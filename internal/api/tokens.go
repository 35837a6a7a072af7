package api

import (
	"errors"
	"net/http"
	"time"

	httperrors "github.com/jw6ventures/sellerpulse/internal/http/errors"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

type tokenResponse struct {
	ID         int64      `json:"id"`
	Label      string     `json:"label"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

func toTokenResponse(t store.APIToken) tokenResponse {
	return tokenResponse{
		ID:         t.ID,
		Label:      t.Label,
		CreatedAt:  t.CreatedAt,
		ExpiresAt:  t.ExpiresAt,
		RevokedAt:  t.RevokedAt,
		LastUsedAt: t.LastUsedAt,
	}
}

type createTokenRequest struct {
	Label   string `json:"label" validate:"required,max=100"`
	TTLDays int    `json:"ttlDays" validate:"omitempty,gte=1,lte=365"`
}

// CreateToken mints a bearer token. The plaintext appears in this response
// only; afterwards only the hash exists.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createTokenRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	ttl := time.Duration(req.TTLDays) * 24 * time.Hour
	created, plaintext, err := h.minter.MintAPIToken(r.Context(), user.ID, req.Label, ttl)
	if err != nil {
		httperrors.InternalError(w, r, err, "create API token")
		return
	}

	resp := struct {
		tokenResponse
		Token string `json:"token"`
	}{toTokenResponse(*created), plaintext}
	h.writeJSON(w, r, http.StatusCreated, resp)
}

// ListTokens lists the user's tokens without secrets.
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	tokens, err := h.store.APITokens.ListByUser(r.Context(), user.ID)
	if err != nil {
		httperrors.InternalError(w, r, err, "list API tokens")
		return
	}

	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toTokenResponse(t))
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"tokens": out})
}

// RevokeToken marks a token unusable. Revocation is permanent.
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid token id")
		return
	}

	if err := h.store.APITokens.Revoke(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperrors.NotFoundError(w, r, "token not found")
			return
		}
		httperrors.InternalError(w, r, err, "revoke API token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
