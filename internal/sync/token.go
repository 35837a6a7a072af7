package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jw6ventures/sellerpulse/internal/marketplace"
	"github.com/jw6ventures/sellerpulse/internal/store"
)

// freshThreshold is how much remaining lifetime a stored access token needs
// before a refresh round-trip is skipped.
const freshThreshold = time.Hour

// tokenSource is the slice of the upstream client the refresher needs.
type tokenSource interface {
	RefreshToken(ctx context.Context, refreshToken string) (*marketplace.TokenPayload, error)
}

// TokenRefresher keeps a linked account's access token usable, rotating it
// through the upstream refresh endpoint when it nears expiry.
type TokenRefresher struct {
	upstream tokenSource
	accounts store.AccountRepository
	now      func() time.Time
}

func NewTokenRefresher(upstream tokenSource, accounts store.AccountRepository) *TokenRefresher {
	return &TokenRefresher{upstream: upstream, accounts: accounts, now: time.Now}
}

// EnsureFreshToken returns a usable access token for the account. When the
// stored token expires more than an hour out it is returned as-is with no
// network call. Otherwise the refresh token is exchanged and the rotated
// credentials are persisted before the new token is returned, so a caller
// never holds a token that was not durably saved. The account struct is
// updated in place to match what was persisted.
func (tr *TokenRefresher) EnsureFreshToken(ctx context.Context, acct *store.Account) (string, error) {
	if acct.RefreshToken == "" {
		return "", &TokenRefreshError{AccountID: acct.ID, Message: "account has no refresh token"}
	}

	if acct.TokenExpiresAt.After(tr.now().Add(freshThreshold)) {
		return acct.AccessToken, nil
	}

	payload, err := tr.upstream.RefreshToken(ctx, acct.RefreshToken)
	if err != nil {
		var apiErr *marketplace.APIError
		if errors.As(err, &apiErr) {
			return "", &TokenRefreshError{AccountID: acct.ID, Message: apiErr.Message, Err: err}
		}
		return "", &TokenRefreshError{AccountID: acct.ID, Message: err.Error(), Err: err}
	}

	refreshToken := payload.RefreshToken
	if refreshToken == "" {
		// Upstream may omit the refresh token when it is not rotated.
		refreshToken = acct.RefreshToken
	}
	expiresAt := tr.now().Add(time.Duration(payload.ExpiresIn) * time.Second)

	if err := tr.accounts.UpdateTokens(ctx, acct.ID, payload.AccessToken, refreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed tokens for account %d: %w", acct.ID, err)
	}

	acct.AccessToken = payload.AccessToken
	acct.RefreshToken = refreshToken
	acct.TokenExpiresAt = expiresAt
	return payload.AccessToken, nil
}
