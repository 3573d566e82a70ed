package envelope

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldRoundTrip(t *testing.T) {
	m, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	for _, plaintext := range []string{"hello", "", "Åse Ødegård 42", "line\nbreak"} {
		ct, err := codec.EncryptField(plaintext, m.DataKey)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ct)

		got, err := codec.DecryptField(ct, m.DataKey)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestFieldCiphertextNotDeterministic(t *testing.T) {
	m, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	a, err := codec.EncryptField("same plaintext", m.DataKey)
	require.NoError(t, err)
	b, err := codec.EncryptField("same plaintext", m.DataKey)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptFieldRejectsWrongKey(t *testing.T) {
	m1, err := vault.Generate()
	require.NoError(t, err)
	m2, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	ct, err := codec.EncryptField("secret", m1.DataKey)
	require.NoError(t, err)

	_, err = codec.DecryptField(ct, m2.DataKey)
	assert.Error(t, err)
}

func TestUnwrapDataKey(t *testing.T) {
	m, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	key, err := codec.UnwrapDataKey(m.WrappedDataKey, m.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, m.DataKey, key)
}

func TestUnwrapDataKeyWrongPrivateKey(t *testing.T) {
	m1, err := vault.Generate()
	require.NoError(t, err)
	m2, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	_, err = codec.UnwrapDataKey(m1.WrappedDataKey, m2.PrivateKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrKeyUnwrap)
}

func TestUnwrapDataKeyCorruptCiphertext(t *testing.T) {
	m, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	_, err = codec.UnwrapDataKey("AAAA"+m.WrappedDataKey[4:], m.PrivateKey)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrKeyUnwrap)
}

func TestAccountRoundTrip(t *testing.T) {
	m, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	account := &models.Account{
		ID:                 7,
		HolderName:         "Grace Hopper",
		HolderAddress:      "1 Compiler Way",
		HolderEmail:        "grace@example.com",
		Balance:            decimal.RequireFromString("150.25"),
		Role:               models.RoleUser,
		Status:             models.AccountStatusActive,
		VerificationStatus: models.VerificationDone,
		WrappedDataKey:     m.WrappedDataKey,
		PublicKey:          m.PublicKey,
		CreatedAt:          time.Now().UTC(),
	}

	rec, err := codec.EncryptAccount(account, m.DataKey)
	require.NoError(t, err)

	// Sensitive fields are ciphertext at rest.
	assert.NotEqual(t, account.HolderName, rec.HolderName)
	assert.NotEqual(t, account.HolderEmail, rec.HolderEmail)
	assert.NotContains(t, rec.Balance, "150.25")
	// Routing fields stay plain.
	assert.Equal(t, account.ID, rec.ID)
	assert.Equal(t, account.Status, rec.Status)
	assert.Equal(t, account.Role, rec.Role)

	got, err := codec.DecryptAccount(rec, m.DataKey)
	require.NoError(t, err)
	assert.Equal(t, account.HolderName, got.HolderName)
	assert.Equal(t, account.HolderAddress, got.HolderAddress)
	assert.Equal(t, account.HolderEmail, got.HolderEmail)
	assert.True(t, account.Balance.Equal(got.Balance))
	assert.Equal(t, account.VerificationStatus, got.VerificationStatus)
}

func TestTransactionRoundTrip(t *testing.T) {
	m, err := vault.Generate()
	require.NoError(t, err)
	codec := New()

	tx := &models.Transaction{
		ID:         3,
		SenderID:   1,
		ReceiverID: 2,
		Amount:     decimal.RequireFromString("40.00"),
		Status:     models.TxStatusSuccess,
		CreatedAt:  time.Now().UTC(),
	}

	rec, err := codec.EncryptTransaction(tx, m.WrappedDataKey, m.DataKey)
	require.NoError(t, err)
	assert.Equal(t, m.WrappedDataKey, rec.SenderWrappedKey)
	assert.NotContains(t, rec.Amount, "40.00")
	assert.Equal(t, tx.Status, rec.Status)

	got, err := codec.DecryptTransaction(rec, m.DataKey)
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(got.Amount))
	assert.Equal(t, tx.SenderID, got.SenderID)
	assert.Equal(t, tx.ReceiverID, got.ReceiverID)
}
