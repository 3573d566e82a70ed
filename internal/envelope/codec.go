// Package envelope implements the field-level envelope encryption codec:
// a per-account AES-256 data key, wrapped under the account's RSA key pair,
// encrypts every sensitive field of a record individually.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/domain"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/observability"
	"github.com/silverstone/ledger/internal/vault"
)

// Codec performs the wrap/unwrap and field encrypt/decrypt round trips.
// Field ciphertexts are AES-256-GCM with a fresh random nonce prepended, so
// identical plaintexts never produce identical ciphertexts and equality
// between records cannot be observed at rest.
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

// UnwrapDataKey opens an account's wrapped data key with its private key.
// Corrupt ciphertext or mismatched key material yields ErrKeyUnwrap: the
// caller must abort before touching any balance.
func (c *Codec) UnwrapDataKey(wrappedKey, privateKey string) ([]byte, error) {
	priv, err := vault.DecodePrivateKey(privateKey)
	if err != nil {
		observability.IncrementKeyUnwrapFailure()
		return nil, fmt.Errorf("%w: %v", models.ErrKeyUnwrap, err)
	}
	ct, err := base64.StdEncoding.DecodeString(wrappedKey)
	if err != nil {
		observability.IncrementKeyUnwrapFailure()
		return nil, fmt.Errorf("%w: wrapped key is not valid base64", models.ErrKeyUnwrap)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		observability.IncrementKeyUnwrapFailure()
		return nil, fmt.Errorf("%w: %v", models.ErrKeyUnwrap, err)
	}
	return key, nil
}

// EncryptField encrypts one UTF-8 field value under the data key.
func (c *Codec) EncryptField(plaintext string, dataKey []byte) (string, error) {
	gcm, err := newGCM(dataKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField inverts EncryptField for any input, the empty string included.
func (c *Codec) DecryptField(ciphertext string, dataKey []byte) (string, error) {
	gcm, err := newGCM(dataKey)
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: field ciphertext is not valid base64", models.ErrKeyUnwrap)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: field ciphertext truncated", models.ErrKeyUnwrap)
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: field decryption failed", models.ErrKeyUnwrap)
	}
	return string(plain), nil
}

// EncryptAccount converts a plaintext account into its enveloped form,
// encrypting every sensitive field while leaving identifiers, role, status
// and the key material untouched.
func (c *Codec) EncryptAccount(a *models.Account, dataKey []byte) (*models.AccountRecord, error) {
	rec := &models.AccountRecord{
		ID:             a.ID,
		Role:           a.Role,
		Status:         a.Status,
		WrappedDataKey: a.WrappedDataKey,
		PublicKey:      a.PublicKey,
		CreatedAt:      a.CreatedAt,
	}
	var err error
	if rec.HolderName, err = c.EncryptField(a.HolderName, dataKey); err != nil {
		return nil, fmt.Errorf("encrypt holder name: %w", err)
	}
	if rec.HolderAddress, err = c.EncryptField(a.HolderAddress, dataKey); err != nil {
		return nil, fmt.Errorf("encrypt holder address: %w", err)
	}
	if rec.HolderEmail, err = c.EncryptField(a.HolderEmail, dataKey); err != nil {
		return nil, fmt.Errorf("encrypt holder email: %w", err)
	}
	if rec.Balance, err = c.EncryptField(domain.FormatAmount(a.Balance), dataKey); err != nil {
		return nil, fmt.Errorf("encrypt balance: %w", err)
	}
	if rec.VerificationStatus, err = c.EncryptField(a.VerificationStatus, dataKey); err != nil {
		return nil, fmt.Errorf("encrypt verification status: %w", err)
	}
	return rec, nil
}

// DecryptAccount inverts EncryptAccount.
func (c *Codec) DecryptAccount(rec *models.AccountRecord, dataKey []byte) (*models.Account, error) {
	a := &models.Account{
		ID:             rec.ID,
		Role:           rec.Role,
		Status:         rec.Status,
		WrappedDataKey: rec.WrappedDataKey,
		PublicKey:      rec.PublicKey,
		CreatedAt:      rec.CreatedAt,
	}
	var err error
	if a.HolderName, err = c.DecryptField(rec.HolderName, dataKey); err != nil {
		return nil, fmt.Errorf("decrypt holder name: %w", err)
	}
	if a.HolderAddress, err = c.DecryptField(rec.HolderAddress, dataKey); err != nil {
		return nil, fmt.Errorf("decrypt holder address: %w", err)
	}
	if a.HolderEmail, err = c.DecryptField(rec.HolderEmail, dataKey); err != nil {
		return nil, fmt.Errorf("decrypt holder email: %w", err)
	}
	balance, err := c.DecryptField(rec.Balance, dataKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt balance: %w", err)
	}
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("%w: stored balance is not a decimal", models.ErrKeyUnwrap)
	}
	if a.VerificationStatus, err = c.DecryptField(rec.VerificationStatus, dataKey); err != nil {
		return nil, fmt.Errorf("decrypt verification status: %w", err)
	}
	return a, nil
}

// EncryptTransaction envelopes a ledger entry with the sender's data key.
// The record keeps a copy of the sender's wrapped key alongside the amount.
func (c *Codec) EncryptTransaction(t *models.Transaction, senderWrappedKey string, dataKey []byte) (*models.TransactionRecord, error) {
	amount, err := c.EncryptField(domain.FormatAmount(t.Amount), dataKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt amount: %w", err)
	}
	return &models.TransactionRecord{
		ID:               t.ID,
		SenderID:         t.SenderID,
		ReceiverID:       t.ReceiverID,
		Amount:           amount,
		Status:           t.Status,
		SenderWrappedKey: senderWrappedKey,
		CreatedAt:        t.CreatedAt,
	}, nil
}

// DecryptTransaction inverts EncryptTransaction.
func (c *Codec) DecryptTransaction(rec *models.TransactionRecord, dataKey []byte) (*models.Transaction, error) {
	raw, err := c.DecryptField(rec.Amount, dataKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt amount: %w", err)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: stored amount is not a decimal", models.ErrKeyUnwrap)
	}
	return &models.Transaction{
		ID:         rec.ID,
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Amount:     amount,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func newGCM(dataKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad data key length", models.ErrKeyUnwrap)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
