package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jw6ventures/sellerpulse/internal/store"
)

// Bearer tokens look like sp_<id>_<secret>. The id locates the row, the
// secret is compared against its bcrypt hash, so validation costs one lookup
// and one hash check regardless of how many tokens a user holds.
const tokenPrefix = "sp"

var ErrInvalidToken = errors.New("invalid API token")

// MintAPIToken creates a bearer token and returns its plaintext exactly once.
// A zero ttl means the token does not expire.
func (s *Service) MintAPIToken(ctx context.Context, userID int64, label string, ttl time.Duration) (*store.APIToken, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate token secret: %w", err)
	}
	secret := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash token secret: %w", err)
	}

	token := store.APIToken{UserID: userID, Label: label, TokenHash: string(hash)}
	if ttl > 0 {
		expires := time.Now().Add(ttl)
		token.ExpiresAt = &expires
	}

	created, err := s.store.APITokens.Create(ctx, token)
	if err != nil {
		return nil, "", fmt.Errorf("store API token: %w", err)
	}

	plaintext := fmt.Sprintf("%s_%d_%s", tokenPrefix, created.ID, secret)
	return created, plaintext, nil
}

// ValidateAPIToken resolves a presented bearer token to its owning user.
// Revoked and expired tokens fail; successful use bumps last_used_at.
func (s *Service) ValidateAPIToken(ctx context.Context, plaintext string) (*store.User, *store.APIToken, error) {
	parts := strings.SplitN(plaintext, "_", 3)
	if len(parts) != 3 || parts[0] != tokenPrefix {
		return nil, nil, ErrInvalidToken
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	token, err := s.store.APITokens.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}

	if token.RevokedAt != nil {
		return nil, nil, ErrInvalidToken
	}
	if token.ExpiresAt != nil && token.ExpiresAt.Before(time.Now()) {
		return nil, nil, ErrInvalidToken
	}
	if bcrypt.CompareHashAndPassword([]byte(token.TokenHash), []byte(parts[2])) != nil {
		return nil, nil, ErrInvalidToken
	}

	user, err := s.store.Users.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, nil, err
	}

	// last_used_at is best effort.
	_ = s.store.APITokens.TouchLastUsed(ctx, token.ID)
	return user, token, nil
}
