package sync

import (
	"errors"
	"fmt"
)

// ErrNoAccounts is the precondition failure for a sync call that resolves to
// an empty account set. It is raised before any I/O happens.
var ErrNoAccounts = errors.New("no accounts to sync")

// ErrSyncInProgress rejects a new run while the account already has an open
// ledger row for the same kind.
var ErrSyncInProgress = errors.New("sync already in progress for this account")

// TokenRefreshError is fatal to the affected account's current run. The
// upstream message is preserved so the ledger row explains the failure.
type TokenRefreshError struct {
	AccountID int64
	Message   string
	Err       error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for account %d: %s", e.AccountID, e.Message)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }
