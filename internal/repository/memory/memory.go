// Package memory implements the repository contract with in-process maps.
// It backs the test suite and the dev-mode server; it is not durable.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/repository"
)

// Store is a concurrency-safe in-memory repository.Store.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	accounts     map[int64]models.AccountRecord
	credentials  map[int64]models.Credential
	transactions map[int64]models.TransactionRecord

	nextAccountID     int64
	nextTransactionID int64
}

func NewStore() *Store {
	return &Store{
		accounts:          make(map[int64]models.AccountRecord),
		credentials:       make(map[int64]models.Credential),
		transactions:      make(map[int64]models.TransactionRecord),
		nextAccountID:     1,
		nextTransactionID: 1,
	}
}

func (s *Store) Accounts() repository.AccountRepository         { return (*accountRepo)(s) }
func (s *Store) Credentials() repository.CredentialRepository   { return (*credentialRepo)(s) }
func (s *Store) Transactions() repository.TransactionRepository { return (*transactionRepo)(s) }

// RunInTx serializes transactional units and rolls the maps back to their
// snapshot if fn fails. Callers already serialize per-account mutations, so
// the coarse snapshot is safe here.
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	accounts := snapshot(s.accounts)
	credentials := snapshot(s.credentials)
	transactions := snapshot(s.transactions)
	nextAccountID, nextTransactionID := s.nextAccountID, s.nextTransactionID
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.accounts = accounts
		s.credentials = credentials
		s.transactions = transactions
		s.nextAccountID, s.nextTransactionID = nextAccountID, nextTransactionID
		s.mu.Unlock()
		return err
	}
	return nil
}

func snapshot[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type accountRepo Store

func (r *accountRepo) Get(ctx context.Context, id int64) (*models.AccountRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

func (r *accountRepo) Save(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *rec
	if stored.ID == 0 {
		stored.ID = r.nextAccountID
		r.nextAccountID++
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.accounts[stored.ID] = stored
	return &stored, nil
}

func (r *accountRepo) All(ctx context.Context) ([]*models.AccountRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.AccountRecord, 0, len(r.accounts))
	for id := range r.accounts {
		rec := r.accounts[id]
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type credentialRepo Store

func (r *credentialRepo) Get(ctx context.Context, accountID int64) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.credentials[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &cred, nil
}

func (r *credentialRepo) Save(ctx context.Context, cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[cred.AccountID] = *cred
	return nil
}

func (r *credentialRepo) Delete(ctx context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.credentials[accountID]; !ok {
		return models.ErrNotFound
	}
	delete(r.credentials, accountID)
	return nil
}

type transactionRepo Store

func (r *transactionRepo) Get(ctx context.Context, id int64) (*models.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.transactions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &rec, nil
}

func (r *transactionRepo) Save(ctx context.Context, rec *models.TransactionRecord) (*models.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *rec
	if stored.ID == 0 {
		stored.ID = r.nextTransactionID
		r.nextTransactionID++
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.transactions[stored.ID] = stored
	return &stored, nil
}

func (r *transactionRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transactions[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.transactions, id)
	return nil
}

func (r *transactionRepo) All(ctx context.Context) ([]*models.TransactionRecord, error) {
	return r.filter(func(models.TransactionRecord) bool { return true })
}

func (r *transactionRepo) ByAccount(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.filter(func(t models.TransactionRecord) bool {
		return t.SenderID == accountID || t.ReceiverID == accountID
	})
}

func (r *transactionRepo) SentBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.filter(func(t models.TransactionRecord) bool { return t.SenderID == accountID })
}

func (r *transactionRepo) ReceivedBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.filter(func(t models.TransactionRecord) bool { return t.ReceiverID == accountID })
}

func (r *transactionRepo) Pending(ctx context.Context) ([]*models.TransactionRecord, error) {
	return r.filter(func(t models.TransactionRecord) bool { return t.Status == models.TxStatusPending })
}

func (r *transactionRepo) PendingByAccount(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.filter(func(t models.TransactionRecord) bool {
		return t.Status == models.TxStatusPending && (t.SenderID == accountID || t.ReceiverID == accountID)
	})
}

func (r *transactionRepo) PendingSentBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.filter(func(t models.TransactionRecord) bool {
		return t.Status == models.TxStatusPending && t.SenderID == accountID
	})
}

func (r *transactionRepo) PendingReceivedBy(ctx context.Context, accountID int64) ([]*models.TransactionRecord, error) {
	return r.filter(func(t models.TransactionRecord) bool {
		return t.Status == models.TxStatusPending && t.ReceiverID == accountID
	})
}

func (r *transactionRepo) filter(keep func(models.TransactionRecord) bool) ([]*models.TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.TransactionRecord
	for id := range r.transactions {
		rec := r.transactions[id]
		if keep(rec) {
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
