package accounts

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/envelope"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/repository/memory"
	"github.com/silverstone/ledger/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, store *Store, repo *memory.Store, balance string) *models.Account {
	t.Helper()
	ctx := context.Background()

	material, err := vault.Generate()
	require.NoError(t, err)

	account := &models.Account{
		HolderName:         "Ada Lovelace",
		HolderAddress:      "12 Analytical Row",
		HolderEmail:        "ada@example.com",
		Balance:            decimal.RequireFromString(balance),
		Role:               models.RoleUser,
		Status:             models.AccountStatusActive,
		VerificationStatus: models.VerificationDone,
		WrappedDataKey:     material.WrappedDataKey,
		PublicKey:          material.PublicKey,
	}
	rec, err := store.Codec().EncryptAccount(account, material.DataKey)
	require.NoError(t, err)
	stored, err := repo.Accounts().Save(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, repo.Credentials().Save(ctx, &models.Credential{
		AccountID:  stored.ID,
		PrivateKey: material.PrivateKey,
	}))

	account.ID = stored.ID
	account.CreatedAt = stored.CreatedAt
	return account
}

func TestLoadSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	store := NewStore(repo, envelope.New())

	seeded := seedAccount(t, store, repo, "150.25")

	loaded, err := store.Load(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.HolderName, loaded.HolderName)
	assert.Equal(t, seeded.HolderEmail, loaded.HolderEmail)
	assert.True(t, seeded.Balance.Equal(loaded.Balance))

	loaded.Balance = loaded.Balance.Add(decimal.RequireFromString("10.00"))
	saved, err := store.Save(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, "160.25", saved.Balance.StringFixed(2))

	reloaded, err := store.Load(ctx, seeded.ID)
	require.NoError(t, err)
	assert.True(t, saved.Balance.Equal(reloaded.Balance))
}

func TestStoredFormIsEnveloped(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	store := NewStore(repo, envelope.New())

	seeded := seedAccount(t, store, repo, "99.00")

	raw, err := repo.Accounts().Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.NotEqual(t, seeded.HolderName, raw.HolderName)
	assert.NotEqual(t, seeded.HolderEmail, raw.HolderEmail)
	assert.NotContains(t, raw.Balance, "99.00")
}

func TestLoadNotFound(t *testing.T) {
	store := NewStore(memory.NewStore(), envelope.New())
	_, err := store.Load(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLoadAll(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	store := NewStore(repo, envelope.New())

	first := seedAccount(t, store, repo, "1.00")
	second := seedAccount(t, store, repo, "2.00")

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.True(t, all[1].Balance.Equal(second.Balance))
}

func TestDataKeyUnwrap(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	store := NewStore(repo, envelope.New())

	seeded := seedAccount(t, store, repo, "0.00")

	key, err := store.DataKey(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	wrapped, err := store.WrappedKey(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.WrappedDataKey, wrapped)
}

func TestCorruptWrappedKeySurfacesUnwrapError(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore()
	store := NewStore(repo, envelope.New())

	seeded := seedAccount(t, store, repo, "5.00")

	raw, err := repo.Accounts().Get(ctx, seeded.ID)
	require.NoError(t, err)
	raw.WrappedDataKey = "AAAA" + raw.WrappedDataKey[4:]
	_, err = repo.Accounts().Save(ctx, raw)
	require.NoError(t, err)

	_, err = store.Load(ctx, seeded.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrKeyUnwrap)
}
