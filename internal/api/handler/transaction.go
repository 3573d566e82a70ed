package handler

import (
	"context"
	"net/http"

	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/service"
)

type TransactionHandler struct {
	engine *service.Engine
}

func NewTransactionHandler(engine *service.Engine) *TransactionHandler {
	return &TransactionHandler{engine: engine}
}

// List returns the full decrypted ledger. Admin only.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}

	entries, err := h.engine.Transactions(r.Context(), actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}

// ListPending returns every unresolved request. Admin only.
func (h *TransactionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}

	entries, err := h.engine.PendingTransactions(r.Context(), actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}

// History returns ledger entries touching one account; the direction query
// parameter narrows to sent or received.
func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	h.accountQuery(w, r, map[string]accountQueryFn{
		"":         h.engine.AccountTransactions,
		"sent":     h.engine.SentTransactions,
		"received": h.engine.ReceivedTransactions,
	})
}

// PendingHistory returns unresolved requests touching one account.
func (h *TransactionHandler) PendingHistory(w http.ResponseWriter, r *http.Request) {
	h.accountQuery(w, r, map[string]accountQueryFn{
		"":         h.engine.AccountPendingTransactions,
		"sent":     h.engine.PendingSent,
		"received": h.engine.PendingReceived,
	})
}

type accountQueryFn func(ctx context.Context, actor models.Actor, accountID int64) ([]*models.Transaction, error)

func (h *TransactionHandler) accountQuery(w http.ResponseWriter, r *http.Request, byDirection map[string]accountQueryFn) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}
	accountID, err := pathID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid account id")
		return
	}

	query, ok := byDirection[r.URL.Query().Get("direction")]
	if !ok {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-direction", "direction must be sent or received")
		return
	}

	entries, err := query(r.Context(), actor, accountID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}
