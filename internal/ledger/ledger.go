// Package ledger is the append-only transaction log. Every attempted balance
// mutation lands here, failures included; amounts are enveloped with the
// sender's data key before they are persisted.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/envelope"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/repository"
)

type Ledger struct {
	repo  repository.Store
	codec *envelope.Codec
}

func New(repo repository.Store, codec *envelope.Codec) *Ledger {
	return &Ledger{repo: repo, codec: codec}
}

// With returns a view bound to a transaction-scoped repository.
func (l *Ledger) With(tx repository.Store) *Ledger {
	return &Ledger{repo: tx, codec: l.codec}
}

// Record appends one entry. The amount is wrapped with the sender's data key
// (not the receiver's) and the record keeps its own copy of the sender's
// wrapped key. For deposits and withdrawals sender and receiver are the same
// account.
func (l *Ledger) Record(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal, status string) (*models.Transaction, error) {
	wrappedKey, dataKey, err := l.senderKey(ctx, senderID)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	rec, err := l.codec.EncryptTransaction(tx, wrappedKey, dataKey)
	if err != nil {
		return nil, fmt.Errorf("envelope ledger entry: %w", err)
	}
	stored, err := l.repo.Transactions().Save(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	tx.ID = stored.ID
	tx.CreatedAt = stored.CreatedAt
	return tx, nil
}

// Get returns one decrypted entry; models.ErrNotFound when absent.
func (l *Ledger) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	rec, err := l.repo.Transactions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.decrypt(ctx, rec, nil)
}

// Delete removes an entry permanently. It exists to retire resolved pending
// entries; models.ErrNotFound when the id is absent.
func (l *Ledger) Delete(ctx context.Context, id int64) error {
	return l.repo.Transactions().Delete(ctx, id)
}

func (l *Ledger) All(ctx context.Context) ([]*models.Transaction, error) {
	return l.collect(ctx, l.repo.Transactions().All)
}

func (l *Ledger) ByAccount(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	return l.collectFor(ctx, accountID, l.repo.Transactions().ByAccount)
}

func (l *Ledger) SentBy(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	return l.collectFor(ctx, accountID, l.repo.Transactions().SentBy)
}

func (l *Ledger) ReceivedBy(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	return l.collectFor(ctx, accountID, l.repo.Transactions().ReceivedBy)
}

func (l *Ledger) Pending(ctx context.Context) ([]*models.Transaction, error) {
	return l.collect(ctx, l.repo.Transactions().Pending)
}

func (l *Ledger) PendingByAccount(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	return l.collectFor(ctx, accountID, l.repo.Transactions().PendingByAccount)
}

func (l *Ledger) PendingSentBy(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	return l.collectFor(ctx, accountID, l.repo.Transactions().PendingSentBy)
}

func (l *Ledger) PendingReceivedBy(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	return l.collectFor(ctx, accountID, l.repo.Transactions().PendingReceivedBy)
}

// senderKey resolves the sender's wrapped key and its unwrapped form.
func (l *Ledger) senderKey(ctx context.Context, senderID int64) (string, []byte, error) {
	acc, err := l.repo.Accounts().Get(ctx, senderID)
	if err != nil {
		return "", nil, fmt.Errorf("load sender account %d: %w", senderID, err)
	}
	cred, err := l.repo.Credentials().Get(ctx, senderID)
	if err != nil {
		return "", nil, fmt.Errorf("load sender credential %d: %w", senderID, err)
	}
	dataKey, err := l.codec.UnwrapDataKey(acc.WrappedDataKey, cred.PrivateKey)
	if err != nil {
		return "", nil, fmt.Errorf("sender %d: %w", senderID, err)
	}
	return acc.WrappedDataKey, dataKey, nil
}

// decrypt opens one record using the wrapped key stored on it. keyCache,
// when non-nil, memoizes unwrapped keys across one query result. It is keyed
// by the wrapped key itself, not the sender id: records carry their own key
// copy so that rows written before a key rotation still open, and a mixed
// result set must not reuse one sender's cached key for all of them.
func (l *Ledger) decrypt(ctx context.Context, rec *models.TransactionRecord, keyCache map[string][]byte) (*models.Transaction, error) {
	dataKey, ok := keyCache[rec.SenderWrappedKey]
	if !ok {
		cred, err := l.repo.Credentials().Get(ctx, rec.SenderID)
		if err != nil {
			return nil, fmt.Errorf("load sender credential %d: %w", rec.SenderID, err)
		}
		dataKey, err = l.codec.UnwrapDataKey(rec.SenderWrappedKey, cred.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", rec.ID, err)
		}
		if keyCache != nil {
			keyCache[rec.SenderWrappedKey] = dataKey
		}
	}
	tx, err := l.codec.DecryptTransaction(rec, dataKey)
	if err != nil {
		return nil, fmt.Errorf("ledger entry %d: %w", rec.ID, err)
	}
	return tx, nil
}

func (l *Ledger) collect(ctx context.Context, query func(context.Context) ([]*models.TransactionRecord, error)) ([]*models.Transaction, error) {
	recs, err := query(ctx)
	if err != nil {
		return nil, err
	}
	return l.decryptAll(ctx, recs)
}

func (l *Ledger) collectFor(ctx context.Context, accountID int64, query func(context.Context, int64) ([]*models.TransactionRecord, error)) ([]*models.Transaction, error) {
	recs, err := query(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return l.decryptAll(ctx, recs)
}

func (l *Ledger) decryptAll(ctx context.Context, recs []*models.TransactionRecord) ([]*models.Transaction, error) {
	keyCache := make(map[string][]byte)
	out := make([]*models.Transaction, 0, len(recs))
	for _, rec := range recs {
		tx, err := l.decrypt(ctx, rec, keyCache)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
