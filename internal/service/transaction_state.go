package service

import (
	"fmt"

	"github.com/silverstone/ledger/internal/models"
)

// Pending is the only state that can be resolved; each terminal state is
// reached by exactly one resolving call. Resolution never mutates the
// pending entry in place: it appends a fresh terminal entry and deletes the
// pending one, so a resolved id simply ceases to exist as pending.
var transactionTransitions = map[string]map[string]struct{}{
	models.TxStatusPending: {
		models.TxStatusSuccess:  {},
		models.TxStatusFailed:   {},
		models.TxStatusDeclined: {},
	},
	models.TxStatusSuccess:  {},
	models.TxStatusFailed:   {},
	models.TxStatusDeclined: {},
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// requirePending guards the execute/decline paths: resolving an id that is
// not currently pending must fail, never silently succeed, or replayed
// requests could double-spend.
func requirePending(tx *models.Transaction, next string) error {
	if !canTransition(tx.Status, next) {
		return fmt.Errorf("%w: transaction %d is %s", models.ErrInvalidState, tx.ID, tx.Status)
	}
	return nil
}
