package service

import (
	"context"

	"github.com/silverstone/ledger/internal/accounts"
	"github.com/silverstone/ledger/internal/ledger"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/observability"
	"go.uber.org/zap"
)

// ReconciliationService sweeps the durable state for integrity faults:
// records that no longer decrypt, negative balances, ledger entries with
// unknown statuses, and pending entries whose accounts are gone or closed.
// Self-referencing entries cover both deposits and withdrawals, so the sweep
// audits invariants rather than replaying balances from history.
type ReconciliationService struct {
	accounts *accounts.Store
	ledger   *ledger.Ledger
	log      *zap.Logger
}

func NewReconciliationService(accountStore *accounts.Store, txLedger *ledger.Ledger, log *zap.Logger) *ReconciliationService {
	return &ReconciliationService{accounts: accountStore, ledger: txLedger, log: log}
}

// Reconcile runs one full sweep and returns the number of faults found.
// Faults are reported, never repaired: a divergence here means either
// corruption or a bug in the transfer engine, and both need a human.
func (s *ReconciliationService) Reconcile(ctx context.Context) (int, error) {
	faults := 0

	all, err := s.accounts.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	open := make(map[int64]bool, len(all))
	for _, a := range all {
		open[a.ID] = a.Status != models.AccountStatusClosed
		if a.Balance.IsNegative() {
			faults++
			s.log.Error("negative balance detected",
				zap.Int64("account_id", a.ID),
				zap.String("balance", a.Balance.String()))
		}
	}

	entries, err := s.ledger.All(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range entries {
		switch t.Status {
		case models.TxStatusPending:
			if !open[t.SenderID] || !open[t.ReceiverID] {
				faults++
				s.log.Error("pending entry references unavailable account",
					zap.Int64("transaction_id", t.ID),
					zap.Int64("sender_id", t.SenderID),
					zap.Int64("receiver_id", t.ReceiverID))
			}
		case models.TxStatusSuccess, models.TxStatusFailed, models.TxStatusDeclined:
		default:
			faults++
			s.log.Error("ledger entry has unknown status",
				zap.Int64("transaction_id", t.ID),
				zap.String("status", t.Status))
		}
		if t.Amount.IsNegative() {
			faults++
			s.log.Error("ledger entry has negative amount",
				zap.Int64("transaction_id", t.ID),
				zap.String("amount", t.Amount.String()))
		}
	}

	for i := 0; i < faults; i++ {
		observability.IncrementImbalance()
	}
	if faults > 0 {
		s.log.Warn("reconciliation sweep found faults", zap.Int("faults", faults))
	}
	return faults, nil
}
