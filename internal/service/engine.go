// Package service hosts the transfer engine: the one component allowed to
// decide balance mutations and transaction status transitions.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/accounts"
	"github.com/silverstone/ledger/internal/domain"
	"github.com/silverstone/ledger/internal/ledger"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/notify"
	"github.com/silverstone/ledger/internal/observability"
	"github.com/silverstone/ledger/internal/repository"
	"go.uber.org/zap"
)

// Engine orchestrates deposits, withdrawals, transfers and the pending
// transaction protocol. Every operation follows the same shape:
// authorize once, lock the affected accounts in ascending id order,
// decrypt, validate, mutate, re-encrypt, persist, and append the ledger
// entry for the outcome inside the same storage transaction.
type Engine struct {
	repo       repository.Store
	accounts   *accounts.Store
	ledger     *ledger.Ledger
	notifier   notify.Notifier
	locks      *lockTable
	backendURL string

	// enrollMu serializes the email-uniqueness scan with the insert that
	// follows it. Emails are ciphertext at rest, so the database cannot
	// enforce uniqueness for us.
	enrollMu sync.Mutex
}

func NewEngine(repo repository.Store, accountStore *accounts.Store, txLedger *ledger.Ledger, notifier notify.Notifier, backendURL string) *Engine {
	return &Engine{
		repo:       repo,
		accounts:   accountStore,
		ledger:     txLedger,
		notifier:   notifier,
		locks:      newLockTable(),
		backendURL: backendURL,
	}
}

// Deposit credits an account. The only failure paths are a missing or
// closed account; every successful deposit appends one success entry with
// sender = receiver = the account acted upon.
func (e *Engine) Deposit(ctx context.Context, actor models.Actor, accountID int64, amount decimal.Decimal) (*models.Account, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}

	release := e.locks.acquire(accountID)
	defer release()

	var updated *models.Account
	err := e.repo.RunInTx(ctx, func(tx repository.Store) error {
		as, lg := e.accounts.With(tx), e.ledger.With(tx)

		account, err := as.Load(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == models.AccountStatusClosed {
			return fmt.Errorf("account %d: %w", accountID, models.ErrAccountClosed)
		}

		account.Balance = account.Balance.Add(amount)
		if updated, err = as.Save(ctx, account); err != nil {
			return err
		}
		_, err = lg.Record(ctx, accountID, accountID, amount, models.TxStatusSuccess)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementLedgerEntry(models.TxStatusSuccess)
	return updated, nil
}

// Withdraw debits an account. An attempt exceeding the balance leaves the
// balance untouched, appends a durable failed entry and reports
// ErrInsufficientBalance: every withdrawal attempt produces exactly one
// ledger entry, successful or not.
func (e *Engine) Withdraw(ctx context.Context, actor models.Actor, accountID int64, amount decimal.Decimal) (*models.Account, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}

	release := e.locks.acquire(accountID)
	defer release()

	account, err := e.accounts.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status == models.AccountStatusClosed {
		return nil, fmt.Errorf("account %d: %w", accountID, models.ErrAccountClosed)
	}

	if account.Balance.LessThan(amount) {
		// The failed attempt is recorded outside the mutation
		// transaction so the audit entry survives the failure.
		if _, recErr := e.ledger.Record(ctx, accountID, accountID, amount, models.TxStatusFailed); recErr != nil {
			return nil, fmt.Errorf("record failed withdrawal: %w", recErr)
		}
		observability.IncrementLedgerEntry(models.TxStatusFailed)
		return nil, fmt.Errorf("withdraw %s from account %d: %w", domain.FormatAmount(amount), accountID, models.ErrInsufficientBalance)
	}

	var updated *models.Account
	err = e.repo.RunInTx(ctx, func(tx repository.Store) error {
		as, lg := e.accounts.With(tx), e.ledger.With(tx)
		account.Balance = account.Balance.Sub(amount)
		var err error
		if updated, err = as.Save(ctx, account); err != nil {
			return err
		}
		_, err = lg.Record(ctx, accountID, accountID, amount, models.TxStatusSuccess)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementLedgerEntry(models.TxStatusSuccess)
	return updated, nil
}

// Transfer moves amount from sender to receiver in one atomic unit. Total
// balance across the pair is conserved on success and unchanged on failure;
// either way exactly one ledger entry is appended.
func (e *Engine) Transfer(ctx context.Context, actor models.Actor, senderID, receiverID int64, amount decimal.Decimal) (*models.Account, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", models.ErrValidation)
	}
	if err := e.requireOwnerOrAdmin(actor, senderID); err != nil {
		return nil, err
	}

	release := e.locks.acquire(senderID, receiverID)
	defer release()

	sender, err := e.accounts.Load(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	receiver, err := e.accounts.Load(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	if sender.Status == models.AccountStatusClosed {
		return nil, fmt.Errorf("sender %d: %w", senderID, models.ErrAccountClosed)
	}
	if receiver.Status == models.AccountStatusClosed {
		return nil, fmt.Errorf("receiver %d: %w", receiverID, models.ErrAccountClosed)
	}

	if sender.Balance.LessThan(amount) {
		if _, recErr := e.ledger.Record(ctx, senderID, receiverID, amount, models.TxStatusFailed); recErr != nil {
			return nil, fmt.Errorf("record failed transfer: %w", recErr)
		}
		observability.IncrementLedgerEntry(models.TxStatusFailed)
		return nil, fmt.Errorf("transfer %s from account %d: %w", domain.FormatAmount(amount), senderID, models.ErrInsufficientBalance)
	}

	var updated *models.Account
	err = e.repo.RunInTx(ctx, func(tx repository.Store) error {
		as, lg := e.accounts.With(tx), e.ledger.With(tx)
		sender.Balance = sender.Balance.Sub(amount)
		receiver.Balance = receiver.Balance.Add(amount)

		var err error
		if updated, err = as.Save(ctx, sender); err != nil {
			return err
		}
		if _, err = as.Save(ctx, receiver); err != nil {
			return err
		}
		_, err = lg.Record(ctx, senderID, receiverID, amount, models.TxStatusSuccess)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementLedgerEntry(models.TxStatusSuccess)
	return updated, nil
}

// RequestTransfer files a receiver-initiated request that senderID pay
// amount. Both accounts must exist; no balance changes until the sender
// executes or declines.
func (e *Engine) RequestTransfer(ctx context.Context, actor models.Actor, receiverID, senderID int64, amount decimal.Decimal) (*models.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if senderID == receiverID {
		return nil, fmt.Errorf("%w: cannot request money from yourself", models.ErrValidation)
	}
	if err := e.requireOwnerOrAdmin(actor, receiverID); err != nil {
		return nil, err
	}

	for label, id := range map[string]int64{"sender": senderID, "receiver": receiverID} {
		rec, err := e.repo.Accounts().Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		if rec.Status == models.AccountStatusClosed {
			return nil, fmt.Errorf("%s %d: %w", label, id, models.ErrAccountClosed)
		}
	}

	pending, err := e.ledger.Record(ctx, senderID, receiverID, amount, models.TxStatusPending)
	if err != nil {
		return nil, err
	}
	observability.IncrementLedgerEntry(models.TxStatusPending)
	return pending, nil
}

// ExecutePending settles a pending request. Resolution never mutates the
// pending entry: it appends a fresh terminal entry and deletes the pending
// one, in the same storage transaction as any balance movement.
func (e *Engine) ExecutePending(ctx context.Context, actor models.Actor, transactionID int64) (*models.Account, error) {
	pending, err := e.ledger.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := requirePending(pending, models.TxStatusSuccess); err != nil {
		return nil, err
	}
	if err := e.requireOwnerOrAdmin(actor, pending.SenderID); err != nil {
		return nil, err
	}

	release := e.locks.acquire(pending.SenderID, pending.ReceiverID)
	defer release()

	// Re-read under the lock: a concurrent resolve may have retired the
	// entry between the first look and lock acquisition.
	pending, err = e.ledger.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := requirePending(pending, models.TxStatusSuccess); err != nil {
		return nil, err
	}

	sender, err := e.accounts.Load(ctx, pending.SenderID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	receiver, err := e.accounts.Load(ctx, pending.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	if sender.Status == models.AccountStatusClosed {
		return nil, fmt.Errorf("sender %d: %w", pending.SenderID, models.ErrAccountClosed)
	}
	if receiver.Status == models.AccountStatusClosed {
		return nil, fmt.Errorf("receiver %d: %w", pending.ReceiverID, models.ErrAccountClosed)
	}

	if sender.Balance.LessThan(pending.Amount) {
		err = e.repo.RunInTx(ctx, func(tx repository.Store) error {
			lg := e.ledger.With(tx)
			if _, err := lg.Record(ctx, pending.SenderID, pending.ReceiverID, pending.Amount, models.TxStatusFailed); err != nil {
				return err
			}
			return lg.Delete(ctx, transactionID)
		})
		if err != nil {
			return nil, fmt.Errorf("resolve failed execution: %w", err)
		}
		observability.IncrementLedgerEntry(models.TxStatusFailed)
		return nil, fmt.Errorf("execute transaction %d: %w", transactionID, models.ErrInsufficientBalance)
	}

	var updated *models.Account
	err = e.repo.RunInTx(ctx, func(tx repository.Store) error {
		as, lg := e.accounts.With(tx), e.ledger.With(tx)
		sender.Balance = sender.Balance.Sub(pending.Amount)
		receiver.Balance = receiver.Balance.Add(pending.Amount)

		var err error
		if updated, err = as.Save(ctx, sender); err != nil {
			return err
		}
		if _, err = as.Save(ctx, receiver); err != nil {
			return err
		}
		if _, err = lg.Record(ctx, pending.SenderID, pending.ReceiverID, pending.Amount, models.TxStatusSuccess); err != nil {
			return err
		}
		return lg.Delete(ctx, transactionID)
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementLedgerEntry(models.TxStatusSuccess)
	return updated, nil
}

// DeclinePending refuses a pending request. No balance changes; the pending
// entry is replaced by a declined one. Unlike ExecutePending it is allowed
// even when either party has since closed, so stale requests can always be
// retired.
func (e *Engine) DeclinePending(ctx context.Context, actor models.Actor, transactionID int64) error {
	pending, err := e.ledger.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if err := requirePending(pending, models.TxStatusDeclined); err != nil {
		return err
	}
	if err := e.requireOwnerOrAdmin(actor, pending.SenderID); err != nil {
		return err
	}

	release := e.locks.acquire(pending.SenderID, pending.ReceiverID)
	defer release()

	pending, err = e.ledger.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if err := requirePending(pending, models.TxStatusDeclined); err != nil {
		return err
	}

	err = e.repo.RunInTx(ctx, func(tx repository.Store) error {
		lg := e.ledger.With(tx)
		if _, err := lg.Record(ctx, pending.SenderID, pending.ReceiverID, pending.Amount, models.TxStatusDeclined); err != nil {
			return err
		}
		return lg.Delete(ctx, transactionID)
	})
	if err != nil {
		return err
	}
	observability.IncrementLedgerEntry(models.TxStatusDeclined)
	return nil
}

// Transactions returns the full decrypted ledger. Admin capability required.
func (e *Engine) Transactions(ctx context.Context, actor models.Actor) ([]*models.Transaction, error) {
	if err := e.requireAdmin(actor); err != nil {
		return nil, err
	}
	return e.ledger.All(ctx)
}

// AccountTransactions returns every entry touching one account.
func (e *Engine) AccountTransactions(ctx context.Context, actor models.Actor, accountID int64) ([]*models.Transaction, error) {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return e.ledger.ByAccount(ctx, accountID)
}

// SentTransactions returns entries where the account is the sender.
func (e *Engine) SentTransactions(ctx context.Context, actor models.Actor, accountID int64) ([]*models.Transaction, error) {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return e.ledger.SentBy(ctx, accountID)
}

// ReceivedTransactions returns entries where the account is the receiver.
func (e *Engine) ReceivedTransactions(ctx context.Context, actor models.Actor, accountID int64) ([]*models.Transaction, error) {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return e.ledger.ReceivedBy(ctx, accountID)
}

// PendingTransactions returns every unresolved request. Admin only.
func (e *Engine) PendingTransactions(ctx context.Context, actor models.Actor) ([]*models.Transaction, error) {
	if err := e.requireAdmin(actor); err != nil {
		return nil, err
	}
	return e.ledger.Pending(ctx)
}

// AccountPendingTransactions returns unresolved requests touching one account.
func (e *Engine) AccountPendingTransactions(ctx context.Context, actor models.Actor, accountID int64) ([]*models.Transaction, error) {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return e.ledger.PendingByAccount(ctx, accountID)
}

// PendingSent returns unresolved requests the account is asked to pay.
func (e *Engine) PendingSent(ctx context.Context, actor models.Actor, accountID int64) ([]*models.Transaction, error) {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return e.ledger.PendingSentBy(ctx, accountID)
}

// PendingReceived returns unresolved requests the account filed.
func (e *Engine) PendingReceived(ctx context.Context, actor models.Actor, accountID int64) ([]*models.Transaction, error) {
	if err := e.requireOwnerOrAdmin(actor, accountID); err != nil {
		return nil, err
	}
	return e.ledger.PendingReceivedBy(ctx, accountID)
}

func (e *Engine) requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return models.ErrForbidden
	}
	return nil
}

func (e *Engine) requireOwnerOrAdmin(actor models.Actor, accountID int64) error {
	if actor.IsAdmin() || actor.AccountID == accountID {
		return nil
	}
	return models.ErrForbidden
}

// notifyBestEffort sends a message and only warns on failure: notification
// delivery is never allowed to fail the triggering operation.
func (e *Engine) notifyBestEffort(ctx context.Context, to, subject, body string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, to, subject, body); err != nil {
		zap.L().Warn("notification delivery failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
	}
}

// IsBusinessError reports whether err is an expected business-rule outcome
// rather than a system fault, so callers can avoid leaking internals.
func IsBusinessError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInsufficientBalance) ||
		errors.Is(err, models.ErrInvalidState) ||
		errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrAccountClosed) ||
		errors.Is(err, models.ErrEmailTaken) ||
		errors.Is(err, models.ErrForbidden)
}
