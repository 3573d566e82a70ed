// Package repository defines the storage contract the core depends on.
// Implementations live in the memory and postgres subpackages.
package repository

import (
	"context"

	"github.com/silverstone/ledger/internal/models"
)

// AccountRepository stores enveloped account records keyed by account id.
type AccountRepository interface {
	// Get returns models.ErrNotFound when the id is absent.
	Get(ctx context.Context, id int64) (*models.AccountRecord, error)
	// Save persists the full record, assigning an id when the record has
	// none. There is no partial-field update.
	Save(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error)
	All(ctx context.Context) ([]*models.AccountRecord, error)
}

// CredentialRepository stores credential records separately from accounts so
// either side can be rotated or deleted independently.
type CredentialRepository interface {
	Get(ctx context.Context, accountID int64) (*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, accountID int64) error
}

// TransactionRepository stores enveloped ledger entries.
type TransactionRepository interface {
	Get(ctx context.Context, id int64) (*models.TransactionRecord, error)
	Save(ctx context.Context, rec *models.TransactionRecord) (*models.TransactionRecord, error)
	// Delete removes an entry permanently; models.ErrNotFound when absent.
	Delete(ctx context.Context, id int64) error

	All(ctx context.Context) ([]*models.TransactionRecord, error)
	ByAccount(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error)
	SentBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error)
	ReceivedBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error)
	Pending(ctx context.Context) ([]*models.TransactionRecord, error)
	PendingByAccount(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error)
	PendingSentBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error)
	PendingReceivedBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error)
}

// Store bundles the three record kinds and transaction scoping. RunInTx
// executes fn against a store view whose writes commit or roll back as one
// unit; the engine uses it to keep balance mutations and their ledger append
// atomic.
type Store interface {
	Accounts() AccountRepository
	Credentials() CredentialRepository
	Transactions() TransactionRepository
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}
