package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jw6ventures/sellerpulse/internal/store"
)

// RequireSession gates browser-facing routes. Unauthenticated requests are
// redirected to the login page.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.sessionUser(r)
		if !ok {
			http.Redirect(w, r, "/auth/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RequireAPIAuth gates /api routes. A bearer token is checked first; without
// one the browser session is accepted, so the dashboard and scripts share the
// same surface.
func (s *Service) RequireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header := r.Header.Get("Authorization"); header != "" {
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				unauthorized(w, r, "unsupported authorization scheme")
				return
			}
			user, token, err := s.ValidateAPIToken(r.Context(), strings.TrimSpace(raw))
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					unauthorized(w, r, "invalid API token")
				} else {
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
				return
			}
			ctx := WithAPITokenID(WithUser(r.Context(), user), token.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		user, ok := s.sessionUser(r)
		if !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (s *Service) sessionUser(r *http.Request) (*store.User, bool) {
	uid, ok := s.sessions.CurrentUserID(r)
	if !ok {
		return nil, false
	}
	user, err := s.store.Users.GetByID(r.Context(), uid)
	if err != nil {
		return nil, false
	}
	return user, true
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":     message,
		"requestId": middleware.GetReqID(r.Context()),
	})
}
