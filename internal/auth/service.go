package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/jw6ventures/sellerpulse/internal/config"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

const (
	stateCookie = "sellerpulse_oauth_state"
	stateTTL    = 10 * time.Minute
)

// Service handles dashboard sign-in (OIDC) and programmatic access (bearer
// tokens).
type Service struct {
	cfg      *config.Config
	store    *store.Store
	sessions *SessionManager

	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewService discovers the OIDC provider's endpoints from its issuer URL. The
// context bounds the discovery request only.
func NewService(ctx context.Context, cfg *config.Config, st *store.Store, sessions *SessionManager) (*Service, error) {
	provider, err := oidc.NewProvider(ctx, cfg.OIDC.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider %s: %w", cfg.OIDC.IssuerURL, err)
	}

	return &Service{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		oauth: oauth2.Config{
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.BaseURL + cfg.OIDC.RedirectPath,
			Scopes:       []string{oidc.ScopeOpenID, "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDC.ClientID}),
	}, nil
}

// BeginOAuth starts the OIDC authorization flow. The state nonce is kept in a
// short-lived signed cookie and checked on callback.
func (s *Service) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	encoded, err := s.sessions.codec.Encode(stateCookie, state)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    encoded,
		Path:     "/auth",
		Expires:  time.Now().Add(stateTTL),
		HttpOnly: true,
		Secure:   s.sessions.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// HandleOAuthCallback completes the flow: state check, code exchange, ID
// token verification, then user upsert and session issue.
func (s *Service) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := r.Cookie(stateCookie)
	if err != nil {
		http.Error(w, "missing oauth state", http.StatusBadRequest)
		return
	}
	var state string
	if err := s.sessions.codec.Decode(stateCookie, c.Value, &state); err != nil {
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	clearCookie(w, stateCookie, "/auth", s.sessions.secure)

	if r.URL.Query().Get("state") != state {
		http.Error(w, "oauth state mismatch", http.StatusBadRequest)
		return
	}
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		http.Error(w, "authorization was denied", http.StatusForbidden)
		return
	}

	token, err := s.oauth.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "provider returned no id_token", http.StatusBadGateway)
		return
	}
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		http.Error(w, "invalid id_token", http.StatusUnauthorized)
		return
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		http.Error(w, "invalid id_token claims", http.StatusBadGateway)
		return
	}

	user, err := s.store.Users.UpsertOIDCUser(ctx, idToken.Subject, claims.Email)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := s.sessions.Issue(w, user.ID); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session cookie.
func (s *Service) Logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	http.Redirect(w, r, "/auth/login", http.StatusFound)
}

func clearCookie(w http.ResponseWriter, name, path string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    path,
		Expires: time.Unix(0, 0),
		Secure:  secure,
	})
}
