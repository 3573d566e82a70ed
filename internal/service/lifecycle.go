package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/repository"
	"github.com/silverstone/ledger/internal/vault"
	"golang.org/x/crypto/bcrypt"
)

const tempPasswordLength = 16

const tempPasswordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%"

// OpenAccountInput carries the plaintext enrollment details. Password is
// hashed and the rest is enveloped before anything is persisted.
type OpenAccountInput struct {
	HolderName    string
	HolderAddress string
	HolderEmail   string
	Password      string
	Role          string
}

func (in *OpenAccountInput) validate() error {
	switch {
	case strings.TrimSpace(in.HolderName) == "":
		return fmt.Errorf("%w: holder name is required", models.ErrValidation)
	case strings.TrimSpace(in.HolderEmail) == "" || !strings.Contains(in.HolderEmail, "@"):
		return fmt.Errorf("%w: a valid email is required", models.ErrValidation)
	case len(in.Password) < 8:
		return fmt.Errorf("%w: password must be at least 8 characters", models.ErrValidation)
	}
	return nil
}

// OpenAccount enrolls a new holder: generates the account's key material,
// envelopes the initial record, and stores record plus credential in one
// transaction. The verification email is best effort.
func (e *Engine) OpenAccount(ctx context.Context, in OpenAccountInput) (*models.Account, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	material, err := vault.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate key material: %w", err)
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	token := uuid.NewString()
	account := &models.Account{
		HolderName:         in.HolderName,
		HolderAddress:      in.HolderAddress,
		HolderEmail:        in.HolderEmail,
		Balance:            decimal.Zero,
		Role:               role,
		Status:             models.AccountStatusActive,
		VerificationStatus: token,
		WrappedDataKey:     material.WrappedDataKey,
		PublicKey:          material.PublicKey,
	}

	var created *models.Account
	err = func() error {
		// Scan and insert under one mutex so two racing enrollments
		// cannot both pass the uniqueness check. Key generation and
		// hashing stay outside the critical section.
		e.enrollMu.Lock()
		defer e.enrollMu.Unlock()

		if _, err := e.findIDByEmail(ctx, in.HolderEmail); err == nil {
			return fmt.Errorf("%s: %w", in.HolderEmail, models.ErrEmailTaken)
		}

		return e.repo.RunInTx(ctx, func(tx repository.Store) error {
			record, err := e.accounts.Codec().EncryptAccount(account, material.DataKey)
			if err != nil {
				return err
			}
			stored, err := tx.Accounts().Save(ctx, record)
			if err != nil {
				return err
			}
			if err := tx.Credentials().Save(ctx, &models.Credential{
				AccountID:    stored.ID,
				PasswordHash: string(passwordHash),
				PrivateKey:   material.PrivateKey,
			}); err != nil {
				return err
			}
			created, err = e.accounts.Codec().DecryptAccount(stored, material.DataKey)
			return err
		})
	}()
	if err != nil {
		return nil, err
	}

	e.notifyBestEffort(ctx, created.HolderEmail, "Verify your account",
		fmt.Sprintf("Welcome %s. Verify your account: %s/accounts/%d/verify?token=%s",
			created.HolderName, e.backendURL, created.ID, token))
	return created, nil
}

// Account returns the decrypted account view.
func (e *Engine) Account(ctx context.Context, actor models.Actor, accountID int64) (*models.Account, error) {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return e.accounts.Load(ctx, accountID)
}

// Accounts returns every decrypted account. Admin only.
func (e *Engine) Accounts(ctx context.Context, actor models.Actor) ([]*models.Account, error) {
	if err := e.requireAdmin(actor); err != nil {
		return nil, err
	}
	return e.accounts.LoadAll(ctx)
}

// VerifyEmail consumes the emailed token: the verification status field
// holds the outstanding token until it is exchanged for the verified marker.
func (e *Engine) VerifyEmail(ctx context.Context, accountID int64, token string) error {
	release := e.locks.acquire(accountID)
	defer release()

	account, err := e.accounts.Load(ctx, accountID)
	if err != nil {
		return err
	}
	if account.VerificationStatus == models.VerificationDone {
		return nil
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(account.VerificationStatus), []byte(token)) != 1 {
		return fmt.Errorf("%w: verification token mismatch", models.ErrValidation)
	}
	account.VerificationStatus = models.VerificationDone
	_, err = e.accounts.Save(ctx, account)
	return err
}

// Authenticate checks the email/password pair and returns the actor
// identity on success. Failures are reported uniformly so callers cannot
// probe which emails are enrolled.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	id, err := e.findIDByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", models.ErrForbidden)
	}
	cred, err := e.repo.Credentials().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", models.ErrForbidden)
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return nil, fmt.Errorf("invalid credentials: %w", models.ErrForbidden)
	}
	return e.accounts.Load(ctx, id)
}

// SetTemporaryPassword generates a random password for a verified account,
// stores its hash and emails the plaintext to the holder.
func (e *Engine) SetTemporaryPassword(ctx context.Context, email string) error {
	id, err := e.findIDByEmail(ctx, email)
	if err != nil {
		return err
	}

	release := e.locks.acquire(id)
	defer release()

	account, err := e.accounts.Load(ctx, id)
	if err != nil {
		return err
	}
	if account.VerificationStatus != models.VerificationDone {
		return fmt.Errorf("%w: account is not verified", models.ErrValidation)
	}

	temp, err := randomPassword(tempPasswordLength)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(temp), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	cred, err := e.repo.Credentials().Get(ctx, id)
	if err != nil {
		return err
	}
	cred.PasswordHash = string(hash)
	if err := e.repo.Credentials().Save(ctx, cred); err != nil {
		return err
	}

	e.notifyBestEffort(ctx, account.HolderEmail, "Temporary password",
		fmt.Sprintf("Your temporary password is %s. Change it after signing in.", temp))
	return nil
}

// ChangePassword replaces the stored hash after checking the current one.
func (e *Engine) ChangePassword(ctx context.Context, actor models.Actor, accountID int64, current, next string) error {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return err
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", models.ErrValidation)
	}

	cred, err := e.repo.Credentials().Get(ctx, accountID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(current)) != nil {
		return fmt.Errorf("current password mismatch: %w", models.ErrForbidden)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	cred.PasswordHash = string(hash)
	return e.repo.Credentials().Save(ctx, cred)
}

// CloseAccount retires an account. Closure is a status transition, never a
// row deletion: the ledger keeps referring to the account id and the key
// material stays available for decrypting its history.
func (e *Engine) CloseAccount(ctx context.Context, actor models.Actor, accountID int64) error {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return err
	}

	release := e.locks.acquire(accountID)
	defer release()

	account, err := e.accounts.Load(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status == models.AccountStatusClosed {
		return nil
	}
	if !account.Balance.IsZero() {
		return fmt.Errorf("%w: balance must be zero before closing", models.ErrValidation)
	}
	account.Status = models.AccountStatusClosed
	_, err = e.accounts.Save(ctx, account)
	return err
}

// findIDByEmail scans the enveloped records; emails are ciphertext at rest
// so there is no index to query.
func (e *Engine) findIDByEmail(ctx context.Context, email string) (int64, error) {
	all, err := e.accounts.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range all {
		if strings.EqualFold(a.HolderEmail, email) {
			return a.ID, nil
		}
	}
	return 0, fmt.Errorf("email %q: %w", email, models.ErrNotFound)
}

func randomPassword(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(tempPasswordCharset))))
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		b.WriteByte(tempPasswordCharset[idx.Int64()])
	}
	return b.String(), nil
}
