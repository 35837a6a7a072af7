package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userRepo implements UserRepository.
type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) UpsertOIDCUser(ctx context.Context, subject, email string) (*User, error) {
	defer observeDB(ctx, "db.users.upsert")()
	const q = `INSERT INTO users (oidc_subject, email)
VALUES ($1, $2)
ON CONFLICT (oidc_subject) DO UPDATE SET email = EXCLUDED.email, last_login_at = NOW()
RETURNING id, oidc_subject, email, created_at, last_login_at`

	var u User
	if err := r.pool.QueryRow(ctx, q, subject, email).Scan(&u.ID, &u.OIDCSubject, &u.Email, &u.CreatedAt, &u.LastLoginAt); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	defer observeDB(ctx, "db.users.get")()
	const q = `SELECT id, oidc_subject, email, created_at, last_login_at FROM users WHERE id = $1`

	var u User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.OIDCSubject, &u.Email, &u.CreatedAt, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// apiTokenRepo implements APITokenRepository.
type apiTokenRepo struct {
	pool *pgxpool.Pool
}

func (r *apiTokenRepo) Create(ctx context.Context, token APIToken) (*APIToken, error) {
	defer observeDB(ctx, "db.api_tokens.create")()
	const q = `INSERT INTO api_tokens (user_id, label, token_hash, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`

	if err := r.pool.QueryRow(ctx, q, token.UserID, token.Label, token.TokenHash, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt); err != nil {
		return nil, fmt.Errorf("create api token: %w", err)
	}
	return &token, nil
}

func (r *apiTokenRepo) GetByID(ctx context.Context, id int64) (*APIToken, error) {
	defer observeDB(ctx, "db.api_tokens.get")()
	const q = `SELECT id, user_id, label, token_hash, created_at, expires_at, revoked_at, last_used_at
FROM api_tokens WHERE id = $1`

	var t APIToken
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&t.ID, &t.UserID, &t.Label, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &t.LastUsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api token %d: %w", id, err)
	}
	return &t, nil
}

func (r *apiTokenRepo) ListByUser(ctx context.Context, userID int64) ([]APIToken, error) {
	defer observeDB(ctx, "db.api_tokens.list")()
	const q = `SELECT id, user_id, label, token_hash, created_at, expires_at, revoked_at, last_used_at
FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []APIToken
	for rows.Next() {
		var t APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Label, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &t.RevokedAt, &t.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan api token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *apiTokenRepo) Revoke(ctx context.Context, userID, id int64) error {
	defer observeDB(ctx, "db.api_tokens.revoke")()
	const q = `UPDATE api_tokens SET revoked_at = NOW() WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`

	tag, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api token %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *apiTokenRepo) TouchLastUsed(ctx context.Context, id int64) error {
	defer observeDB(ctx, "db.api_tokens.touch")()
	const q = `UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// accountRepo implements AccountRepository.
type accountRepo struct {
	pool *pgxpool.Pool
}

const accountColumns = `id, user_id, seller_id, display_name, country_code, access_token, refresh_token, token_expires_at, active, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.SellerID, &a.DisplayName, &a.CountryCode,
		&a.AccessToken, &a.RefreshToken, &a.TokenExpiresAt, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepo) Link(ctx context.Context, acct Account) (*Account, error) {
	defer observeDB(ctx, "db.accounts.link")()
	const q = `INSERT INTO marketplace_accounts
(user_id, seller_id, display_name, country_code, access_token, refresh_token, token_expires_at, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
ON CONFLICT (user_id, seller_id) WHERE active DO UPDATE SET
    display_name = EXCLUDED.display_name,
    country_code = EXCLUDED.country_code,
    access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    token_expires_at = EXCLUDED.token_expires_at,
    updated_at = NOW()
RETURNING ` + accountColumns

	linked, err := scanAccount(r.pool.QueryRow(ctx, q, acct.UserID, acct.SellerID, acct.DisplayName,
		acct.CountryCode, acct.AccessToken, acct.RefreshToken, acct.TokenExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("link account for seller %s: %w", acct.SellerID, err)
	}
	return linked, nil
}

func (r *accountRepo) GetByID(ctx context.Context, userID, id int64) (*Account, error) {
	defer observeDB(ctx, "db.accounts.get")()
	q := `SELECT ` + accountColumns + ` FROM marketplace_accounts WHERE id = $1 AND user_id = $2`

	a, err := scanAccount(r.pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

func (r *accountRepo) ListActiveByUser(ctx context.Context, userID int64) ([]Account, error) {
	defer observeDB(ctx, "db.accounts.list_active")()
	q := `SELECT ` + accountColumns + ` FROM marketplace_accounts WHERE user_id = $1 AND active ORDER BY created_at`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (r *accountRepo) UpdateTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	defer observeDB(ctx, "db.accounts.update_tokens")()
	const q = `UPDATE marketplace_accounts
SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = NOW()
WHERE id = $1`

	tag, err := r.pool.Exec(ctx, q, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("update tokens for account %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepo) Deactivate(ctx context.Context, userID, id int64) error {
	defer observeDB(ctx, "db.accounts.deactivate")()
	const q = `UPDATE marketplace_accounts SET active = FALSE, updated_at = NOW()
WHERE id = $1 AND user_id = $2 AND active`

	tag, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("deactivate account %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
