package handler

import (
	"encoding/json"
	"net/http"

	"github.com/silverstone/ledger/internal/domain"
	"github.com/silverstone/ledger/internal/service"
)

type TransferHandler struct {
	engine *service.Engine
}

func NewTransferHandler(engine *service.Engine) *TransferHandler {
	return &TransferHandler{engine: engine}
}

// Send moves money from the sender to the receiver immediately.
func (h *TransferHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}

	var req struct {
		SenderID   int64  `json:"sender_id"`
		ReceiverID int64  `json:"receiver_id"`
		Amount     string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	sender, err := h.engine.Transfer(r.Context(), actor, req.SenderID, req.ReceiverID, amount)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, sender)
}

// Request files a pending request that sender_id pay the caller.
func (h *TransferHandler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}

	var req struct {
		ReceiverID int64  `json:"receiver_id"`
		SenderID   int64  `json:"sender_id"`
		Amount     string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}

	pending, err := h.engine.RequestTransfer(r.Context(), actor, req.ReceiverID, req.SenderID, amount)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, pending)
}

// Execute settles a pending request as the paying account.
func (h *TransferHandler) Execute(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}
	transactionID, err := pathID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid transaction id")
		return
	}

	sender, err := h.engine.ExecutePending(r.Context(), actor, transactionID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, sender)
}

// Decline refuses a pending request as the paying account.
func (h *TransferHandler) Decline(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}
	transactionID, err := pathID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid transaction id")
		return
	}

	if err := h.engine.DeclinePending(r.Context(), actor, transactionID); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}
