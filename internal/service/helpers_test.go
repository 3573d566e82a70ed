package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/accounts"
	"github.com/silverstone/ledger/internal/envelope"
	"github.com/silverstone/ledger/internal/ledger"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/notify"
	"github.com/silverstone/ledger/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

var adminActor = models.Actor{AccountID: -1, Role: models.RoleAdmin}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	repo := memory.NewStore()
	codec := envelope.New()
	accountStore := accounts.NewStore(repo, codec)
	txLedger := ledger.New(repo, codec)
	engine := NewEngine(repo, accountStore, txLedger, notify.LogNotifier{}, "http://localhost:8080")
	return engine, repo
}

func openAccount(t *testing.T, e *Engine, name, email string) *models.Account {
	t.Helper()
	account, err := e.OpenAccount(context.Background(), OpenAccountInput{
		HolderName:    name,
		HolderAddress: "1 Test Street",
		HolderEmail:   email,
		Password:      "correct horse battery",
	})
	require.NoError(t, err)
	return account
}

func openFunded(t *testing.T, e *Engine, name, email, balance string) *models.Account {
	t.Helper()
	account := openAccount(t, e, name, email)
	owner := models.Actor{AccountID: account.ID, Role: models.RoleUser}
	funded, err := e.Deposit(context.Background(), owner, account.ID, amt(balance))
	require.NoError(t, err)
	return funded
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ownerOf(a *models.Account) models.Actor {
	return models.Actor{AccountID: a.ID, Role: models.RoleUser}
}

func balanceOf(t *testing.T, e *Engine, id int64) decimal.Decimal {
	t.Helper()
	account, err := e.Account(context.Background(), adminActor, id)
	require.NoError(t, err)
	return account.Balance
}
