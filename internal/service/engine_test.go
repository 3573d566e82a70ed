package service

import (
	"context"
	"sync"
	"testing"

	"github.com/silverstone/ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositThenWithdrawLeavesBalanceUnchanged(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "50.00")

	_, err := e.Deposit(ctx, ownerOf(a), a.ID, amt("12.34"))
	require.NoError(t, err)
	after, err := e.Withdraw(ctx, ownerOf(a), a.ID, amt("12.34"))
	require.NoError(t, err)

	assert.Equal(t, "50.00", after.Balance.StringFixed(2))
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "60.00")

	_, err := e.Withdraw(ctx, ownerOf(a), a.ID, amt("100.00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientBalance)

	// Balance untouched, and the attempt left a durable failed entry.
	assert.Equal(t, "60.00", balanceOf(t, e, a.ID).StringFixed(2))

	entries, err := e.AccountTransactions(ctx, ownerOf(a), a.ID)
	require.NoError(t, err)
	var failed []string
	for _, entry := range entries {
		if entry.Status == models.TxStatusFailed {
			failed = append(failed, entry.Amount.StringFixed(2))
			assert.Equal(t, a.ID, entry.SenderID)
			assert.Equal(t, a.ID, entry.ReceiverID)
		}
	}
	assert.Equal(t, []string{"100.00"}, failed)
}

func TestTransferMovesBalanceAndRecordsEntry(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	b := openAccount(t, e, "Bob", "bob@example.com")

	sender, err := e.Transfer(ctx, ownerOf(a), a.ID, b.ID, amt("40.00"))
	require.NoError(t, err)

	assert.Equal(t, "60.00", sender.Balance.StringFixed(2))
	assert.Equal(t, "40.00", balanceOf(t, e, b.ID).StringFixed(2))

	entries, err := e.SentTransactions(ctx, ownerOf(a), a.ID)
	require.NoError(t, err)
	toB := 0
	for _, entry := range entries {
		if entry.ReceiverID == b.ID {
			toB++
			assert.Equal(t, models.TxStatusSuccess, entry.Status)
			assert.Equal(t, "40.00", entry.Amount.StringFixed(2))
		}
	}
	assert.Equal(t, 1, toB)
}

// The documented end-to-end scenario: A=100.00, B=0.00, Transfer(A,B,40.00),
// then Withdraw(A,100.00) fails and leaves A at 60.00 with a failed entry.
func TestTransferThenOverdraftScenario(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	b := openAccount(t, e, "Bob", "bob@example.com")

	_, err := e.Transfer(ctx, ownerOf(a), a.ID, b.ID, amt("40.00"))
	require.NoError(t, err)
	assert.Equal(t, "60.00", balanceOf(t, e, a.ID).StringFixed(2))
	assert.Equal(t, "40.00", balanceOf(t, e, b.ID).StringFixed(2))

	_, err = e.Withdraw(ctx, ownerOf(a), a.ID, amt("100.00"))
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
	assert.Equal(t, "60.00", balanceOf(t, e, a.ID).StringFixed(2))

	entries, err := e.Transactions(ctx, adminActor)
	require.NoError(t, err)
	var statuses []string
	for _, entry := range entries {
		statuses = append(statuses, entry.Status)
	}
	// Funding deposit, transfer success, withdrawal failure.
	assert.Equal(t, []string{models.TxStatusSuccess, models.TxStatusSuccess, models.TxStatusFailed}, statuses)
}

func TestTransferInsufficientBalanceConservesTotals(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "10.00")
	b := openAccount(t, e, "Bob", "bob@example.com")

	_, err := e.Transfer(ctx, ownerOf(a), a.ID, b.ID, amt("25.00"))
	require.ErrorIs(t, err, models.ErrInsufficientBalance)

	assert.Equal(t, "10.00", balanceOf(t, e, a.ID).StringFixed(2))
	assert.Equal(t, "0.00", balanceOf(t, e, b.ID).StringFixed(2))

	entries, err := e.AccountTransactions(ctx, ownerOf(b), b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TxStatusFailed, entries[0].Status)
	assert.Equal(t, a.ID, entries[0].SenderID)
}

func TestTransferToSelfRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "10.00")

	_, err := e.Transfer(ctx, ownerOf(a), a.ID, a.ID, amt("1.00"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestTransferUnknownReceiver(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "10.00")

	_, err := e.Transfer(ctx, ownerOf(a), a.ID, 999, amt("1.00"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, "10.00", balanceOf(t, e, a.ID).StringFixed(2))
}

func TestRequestTransferLifecycleExecute(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	payer := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	requester := openAccount(t, e, "Bob", "bob@example.com")

	pending, err := e.RequestTransfer(ctx, ownerOf(requester), requester.ID, payer.ID, amt("40.00"))
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, pending.Status)
	assert.Equal(t, payer.ID, pending.SenderID)
	assert.Equal(t, requester.ID, pending.ReceiverID)

	// Filing the request moves no money.
	assert.Equal(t, "100.00", balanceOf(t, e, payer.ID).StringFixed(2))
	assert.Equal(t, "0.00", balanceOf(t, e, requester.ID).StringFixed(2))

	sender, err := e.ExecutePending(ctx, ownerOf(payer), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "60.00", sender.Balance.StringFixed(2))
	assert.Equal(t, "40.00", balanceOf(t, e, requester.ID).StringFixed(2))

	// The pending entry is retired and replaced by a fresh terminal entry.
	stillPending, err := e.PendingTransactions(ctx, adminActor)
	require.NoError(t, err)
	assert.Empty(t, stillPending)

	received, err := e.ReceivedTransactions(ctx, ownerOf(requester), requester.ID)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, models.TxStatusSuccess, received[0].Status)
	assert.NotEqual(t, pending.ID, received[0].ID)
}

func TestExecutePendingInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	payer := openFunded(t, e, "Alice", "alice@example.com", "10.00")
	requester := openAccount(t, e, "Bob", "bob@example.com")

	pending, err := e.RequestTransfer(ctx, ownerOf(requester), requester.ID, payer.ID, amt("40.00"))
	require.NoError(t, err)

	_, err = e.ExecutePending(ctx, ownerOf(payer), pending.ID)
	require.ErrorIs(t, err, models.ErrInsufficientBalance)

	// No balances moved, the pending entry is gone, a failed entry remains.
	assert.Equal(t, "10.00", balanceOf(t, e, payer.ID).StringFixed(2))
	assert.Equal(t, "0.00", balanceOf(t, e, requester.ID).StringFixed(2))

	stillPending, err := e.PendingTransactions(ctx, adminActor)
	require.NoError(t, err)
	assert.Empty(t, stillPending)

	entries, err := e.ReceivedTransactions(ctx, ownerOf(requester), requester.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TxStatusFailed, entries[0].Status)
}

func TestDeclinePending(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	payer := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	requester := openAccount(t, e, "Bob", "bob@example.com")

	pending, err := e.RequestTransfer(ctx, ownerOf(requester), requester.ID, payer.ID, amt("40.00"))
	require.NoError(t, err)

	require.NoError(t, e.DeclinePending(ctx, ownerOf(payer), pending.ID))

	assert.Equal(t, "100.00", balanceOf(t, e, payer.ID).StringFixed(2))

	entries, err := e.ReceivedTransactions(ctx, ownerOf(requester), requester.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TxStatusDeclined, entries[0].Status)
}

func TestExecutePendingAfterCloseRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	payer := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	requester := openAccount(t, e, "Bob", "bob@example.com")

	pending, err := e.RequestTransfer(ctx, ownerOf(requester), requester.ID, payer.ID, amt("40.00"))
	require.NoError(t, err)

	// The requester closes before the payer settles. Executing would
	// credit a closed account, so it must fail and move nothing.
	require.NoError(t, e.CloseAccount(ctx, ownerOf(requester), requester.ID))

	_, err = e.ExecutePending(ctx, ownerOf(payer), pending.ID)
	require.ErrorIs(t, err, models.ErrAccountClosed)
	assert.Equal(t, "100.00", balanceOf(t, e, payer.ID).StringFixed(2))
	assert.Equal(t, "0.00", balanceOf(t, e, requester.ID).StringFixed(2))

	// The request stays pending and can still be retired by declining.
	stillPending, err := e.PendingTransactions(ctx, adminActor)
	require.NoError(t, err)
	require.Len(t, stillPending, 1)
	assert.Equal(t, pending.ID, stillPending[0].ID)

	require.NoError(t, e.DeclinePending(ctx, ownerOf(payer), pending.ID))
	entries, err := e.Transactions(ctx, adminActor)
	require.NoError(t, err)
	var declined int
	for _, entry := range entries {
		if entry.Status == models.TxStatusDeclined {
			declined++
		}
	}
	assert.Equal(t, 1, declined)
}

func TestExecutePendingAfterPayerCloseRejected(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	payer := openAccount(t, e, "Alice", "alice@example.com")
	requester := openAccount(t, e, "Bob", "bob@example.com")

	pending, err := e.RequestTransfer(ctx, ownerOf(requester), requester.ID, payer.ID, amt("40.00"))
	require.NoError(t, err)

	require.NoError(t, e.CloseAccount(ctx, ownerOf(payer), payer.ID))

	_, err = e.ExecutePending(ctx, ownerOf(payer), pending.ID)
	require.ErrorIs(t, err, models.ErrAccountClosed)

	stillPending, err := e.PendingTransactions(ctx, adminActor)
	require.NoError(t, err)
	assert.Len(t, stillPending, 1)
}

func TestResolvedPendingCannotBeResolvedAgain(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	payer := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	requester := openAccount(t, e, "Bob", "bob@example.com")

	pending, err := e.RequestTransfer(ctx, ownerOf(requester), requester.ID, payer.ID, amt("40.00"))
	require.NoError(t, err)

	_, err = e.ExecutePending(ctx, ownerOf(payer), pending.ID)
	require.NoError(t, err)

	// The pending id ceases to exist once resolved.
	_, err = e.ExecutePending(ctx, ownerOf(payer), pending.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	err = e.DeclinePending(ctx, ownerOf(payer), pending.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.Equal(t, "60.00", balanceOf(t, e, payer.ID).StringFixed(2))
	assert.Equal(t, "40.00", balanceOf(t, e, requester.ID).StringFixed(2))
}

func TestTerminalEntryCannotBeExecuted(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	b := openAccount(t, e, "Bob", "bob@example.com")

	_, err := e.Transfer(ctx, ownerOf(a), a.ID, b.ID, amt("40.00"))
	require.NoError(t, err)

	entries, err := e.SentTransactions(ctx, ownerOf(a), a.ID)
	require.NoError(t, err)
	var successID int64
	for _, entry := range entries {
		if entry.ReceiverID == b.ID {
			successID = entry.ID
		}
	}
	require.NotZero(t, successID)

	_, err = e.ExecutePending(ctx, ownerOf(a), successID)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestClosedAccountRejectsMutations(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openAccount(t, e, "Alice", "alice@example.com")
	b := openFunded(t, e, "Bob", "bob@example.com", "10.00")

	require.NoError(t, e.CloseAccount(ctx, ownerOf(a), a.ID))

	_, err := e.Deposit(ctx, ownerOf(a), a.ID, amt("5.00"))
	assert.ErrorIs(t, err, models.ErrAccountClosed)
	_, err = e.Withdraw(ctx, ownerOf(a), a.ID, amt("5.00"))
	assert.ErrorIs(t, err, models.ErrAccountClosed)
	_, err = e.Transfer(ctx, ownerOf(b), b.ID, a.ID, amt("5.00"))
	assert.ErrorIs(t, err, models.ErrAccountClosed)
	_, err = e.RequestTransfer(ctx, ownerOf(a), a.ID, b.ID, amt("5.00"))
	assert.ErrorIs(t, err, models.ErrAccountClosed)

	// History stays readable after closure.
	_, err = e.AccountTransactions(ctx, ownerOf(a), a.ID)
	assert.NoError(t, err)
}

func TestAuthorizationBoundaries(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "50.00")
	b := openAccount(t, e, "Bob", "bob@example.com")

	// Bob cannot move or read Alice's money.
	_, err := e.Withdraw(ctx, ownerOf(b), a.ID, amt("1.00"))
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = e.Transfer(ctx, ownerOf(b), a.ID, b.ID, amt("1.00"))
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = e.AccountTransactions(ctx, ownerOf(b), a.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = e.Account(ctx, ownerOf(b), a.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	// Non-admins cannot use the admin surface.
	_, err = e.Transactions(ctx, ownerOf(b))
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = e.Accounts(ctx, ownerOf(b))
	assert.ErrorIs(t, err, models.ErrForbidden)

	// Admins can do both.
	_, err = e.Withdraw(ctx, adminActor, a.ID, amt("1.00"))
	assert.NoError(t, err)
	_, err = e.Transactions(ctx, adminActor)
	assert.NoError(t, err)
}

func TestOnlyPayerResolvesPending(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	payer := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	requester := openAccount(t, e, "Bob", "bob@example.com")

	pending, err := e.RequestTransfer(ctx, ownerOf(requester), requester.ID, payer.ID, amt("40.00"))
	require.NoError(t, err)

	_, err = e.ExecutePending(ctx, ownerOf(requester), pending.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	err = e.DeclinePending(ctx, ownerOf(requester), pending.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t)
	a := openFunded(t, e, "Alice", "alice@example.com", "100.00")
	b := openFunded(t, e, "Bob", "bob@example.com", "100.00")

	const rounds = 10
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = e.Transfer(ctx, ownerOf(a), a.ID, b.ID, amt("3.00"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = e.Transfer(ctx, ownerOf(b), b.ID, a.ID, amt("5.00"))
		}
	}()
	wg.Wait()

	total := balanceOf(t, e, a.ID).Add(balanceOf(t, e, b.ID))
	assert.Equal(t, "200.00", total.StringFixed(2))
	assert.False(t, balanceOf(t, e, a.ID).IsNegative())
	assert.False(t, balanceOf(t, e, b.ID).IsNegative())
}
