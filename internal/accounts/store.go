// Package accounts is the record store for account state: it owns the
// decrypt-on-load / encrypt-on-save round trip and is the only component
// that converts between plaintext and enveloped account views.
package accounts

import (
	"context"
	"fmt"

	"github.com/silverstone/ledger/internal/envelope"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/repository"
)

type Store struct {
	repo  repository.Store
	codec *envelope.Codec
}

func NewStore(repo repository.Store, codec *envelope.Codec) *Store {
	return &Store{repo: repo, codec: codec}
}

// With returns a view of the store bound to a transaction-scoped repository.
func (s *Store) With(tx repository.Store) *Store {
	return &Store{repo: tx, codec: s.codec}
}

// Load fetches and decrypts one account. It returns models.ErrNotFound when
// the id is absent and models.ErrKeyUnwrap when the stored key material does
// not open.
func (s *Store) Load(ctx context.Context, id int64) (*models.Account, error) {
	rec, err := s.repo.Accounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key, err := s.dataKeyFor(ctx, rec)
	if err != nil {
		return nil, err
	}
	account, err := s.codec.DecryptAccount(rec, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt account %d: %w", id, err)
	}
	return account, nil
}

// Save encrypts every sensitive field and persists the full record; there is
// no partial-field update. The caller gets back the decrypted view of what
// was stored, so save-then-load is observably a no-op.
func (s *Store) Save(ctx context.Context, account *models.Account) (*models.Account, error) {
	key, err := s.DataKey(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	rec, err := s.codec.EncryptAccount(account, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt account %d: %w", account.ID, err)
	}
	stored, err := s.repo.Accounts().Save(ctx, rec)
	if err != nil {
		return nil, err
	}
	decrypted, err := s.codec.DecryptAccount(stored, key)
	if err != nil {
		return nil, fmt.Errorf("decrypt stored account %d: %w", stored.ID, err)
	}
	return decrypted, nil
}

// LoadAll decrypts every account record. Admin-facing; the engine gates it.
func (s *Store) LoadAll(ctx context.Context) ([]*models.Account, error) {
	recs, err := s.repo.Accounts().All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Account, 0, len(recs))
	for _, rec := range recs {
		key, err := s.dataKeyFor(ctx, rec)
		if err != nil {
			return nil, err
		}
		account, err := s.codec.DecryptAccount(rec, key)
		if err != nil {
			return nil, fmt.Errorf("decrypt account %d: %w", rec.ID, err)
		}
		out = append(out, account)
	}
	return out, nil
}

// Codec exposes the envelope codec for callers that hold a raw data key,
// such as enrollment before the credential row exists.
func (s *Store) Codec() *envelope.Codec {
	return s.codec
}

// DataKey unwraps the symmetric data key for one account.
func (s *Store) DataKey(ctx context.Context, id int64) ([]byte, error) {
	rec, err := s.repo.Accounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.dataKeyFor(ctx, rec)
}

// WrappedKey returns the account's wrapped data key as stored.
func (s *Store) WrappedKey(ctx context.Context, id int64) (string, error) {
	rec, err := s.repo.Accounts().Get(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.WrappedDataKey, nil
}

func (s *Store) dataKeyFor(ctx context.Context, rec *models.AccountRecord) ([]byte, error) {
	cred, err := s.repo.Credentials().Get(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("load credential for account %d: %w", rec.ID, err)
	}
	key, err := s.codec.UnwrapDataKey(rec.WrappedDataKey, cred.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", rec.ID, err)
	}
	return key, nil
}
