package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/silverstone/ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAccount(t *testing.T) {
	ctx := context.Background()
	e, repo := newTestEngine(t)

	account := openAccount(t, e, "Alice", "alice@example.com")
	assert.NotZero(t, account.ID)
	assert.Equal(t, "Alice", account.HolderName)
	assert.Equal(t, "0.00", account.Balance.StringFixed(2))
	assert.Equal(t, models.AccountStatusActive, account.Status)
	assert.Equal(t, models.RoleUser, account.Role)
	// A fresh account holds an outstanding verification token.
	assert.NotEmpty(t, account.VerificationStatus)
	assert.NotEqual(t, models.VerificationDone, account.VerificationStatus)

	// The durable form is enveloped and the credential row exists.
	raw, err := repo.Accounts().Get(ctx, account.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Alice", raw.HolderName)
	cred, err := repo.Credentials().Get(ctx, account.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, cred.PasswordHash)
	assert.NotEmpty(t, cred.PrivateKey)
}

func TestOpenAccountValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	_, err := e.OpenAccount(ctx, OpenAccountInput{HolderEmail: "a@b.c", Password: "long enough pw"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.OpenAccount(ctx, OpenAccountInput{HolderName: "A", HolderEmail: "not-an-email", Password: "long enough pw"})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = e.OpenAccount(ctx, OpenAccountInput{HolderName: "A", HolderEmail: "a@b.c", Password: "short"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestOpenAccountEmailTaken(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	openAccount(t, e, "Alice", "alice@example.com")
	_, err := e.OpenAccount(ctx, OpenAccountInput{
		HolderName:  "Impostor",
		HolderEmail: "Alice@Example.com",
		Password:    "long enough pw",
	})
	assert.ErrorIs(t, err, models.ErrEmailTaken)
}

func TestOpenAccountConcurrentSameEmail(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)

	const attempts = 4
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func(n int) {
			_, err := e.OpenAccount(ctx, OpenAccountInput{
				HolderName:  fmt.Sprintf("Racer %d", n),
				HolderEmail: "race@example.com",
				Password:    "long enough pw",
			})
			errs <- err
		}(i)
	}

	var opened, taken int
	for i := 0; i < attempts; i++ {
		err := <-errs
		switch {
		case err == nil:
			opened++
		case errors.Is(err, models.ErrEmailTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, opened)
	assert.Equal(t, attempts-1, taken)

	all, err := e.Accounts(ctx, adminActor)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openAccount(t, e, "Alice", "alice@example.com")

	err := e.VerifyEmail(ctx, account.ID, "wrong-token")
	assert.ErrorIs(t, err, models.ErrValidation)

	// A wrong token of the right length is still rejected.
	sameLength := strings.Repeat("x", len(account.VerificationStatus))
	assert.ErrorIs(t, e.VerifyEmail(ctx, account.ID, sameLength), models.ErrValidation)
	assert.ErrorIs(t, e.VerifyEmail(ctx, account.ID, ""), models.ErrValidation)

	require.NoError(t, e.VerifyEmail(ctx, account.ID, account.VerificationStatus))

	verified, err := e.Account(ctx, ownerOf(account), account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationDone, verified.VerificationStatus)

	// Re-verifying a verified account is a no-op, whatever the token.
	assert.NoError(t, e.VerifyEmail(ctx, account.ID, "anything"))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openAccount(t, e, "Alice", "alice@example.com")

	got, err := e.Authenticate(ctx, "alice@example.com", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	_, err = e.Authenticate(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = e.Authenticate(ctx, "nobody@example.com", "correct horse battery")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openAccount(t, e, "Alice", "alice@example.com")

	err := e.ChangePassword(ctx, ownerOf(account), account.ID, "wrong", "a new long password")
	assert.ErrorIs(t, err, models.ErrForbidden)

	err = e.ChangePassword(ctx, ownerOf(account), account.ID, "correct horse battery", "short")
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, e.ChangePassword(ctx, ownerOf(account), account.ID, "correct horse battery", "a new long password"))

	_, err = e.Authenticate(ctx, "alice@example.com", "a new long password")
	assert.NoError(t, err)
	_, err = e.Authenticate(ctx, "alice@example.com", "correct horse battery")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestSetTemporaryPassword(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openAccount(t, e, "Alice", "alice@example.com")

	// Unverified accounts cannot request a temporary password.
	err := e.SetTemporaryPassword(ctx, "alice@example.com")
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, e.VerifyEmail(ctx, account.ID, account.VerificationStatus))
	require.NoError(t, e.SetTemporaryPassword(ctx, "alice@example.com"))

	// The old password no longer authenticates.
	_, err = e.Authenticate(ctx, "alice@example.com", "correct horse battery")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCloseAccount(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	account := openFunded(t, e, "Alice", "alice@example.com", "10.00")

	err := e.CloseAccount(ctx, ownerOf(account), account.ID)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = e.Withdraw(ctx, ownerOf(account), account.ID, amt("10.00"))
	require.NoError(t, err)
	require.NoError(t, e.CloseAccount(ctx, ownerOf(account), account.ID))

	closed, err := e.Account(ctx, ownerOf(account), account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusClosed, closed.Status)

	// Closing twice is a no-op.
	assert.NoError(t, e.CloseAccount(ctx, ownerOf(account), account.ID))
}

func TestRandomPassword(t *testing.T) {
	a, err := randomPassword(tempPasswordLength)
	require.NoError(t, err)
	b, err := randomPassword(tempPasswordLength)
	require.NoError(t, err)
	assert.Len(t, a, tempPasswordLength)
	assert.NotEqual(t, a, b)
}
