package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/silverstone/ledger/internal/domain"
	"github.com/silverstone/ledger/internal/models"
	"github.com/silverstone/ledger/internal/service"
)

type AccountHandler struct {
	engine *service.Engine
}

func NewAccountHandler(engine *service.Engine) *AccountHandler {
	return &AccountHandler{engine: engine}
}

// Create enrolls a new account holder.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HolderName    string `json:"holder_name"`
		HolderAddress string `json:"holder_address"`
		HolderEmail   string `json:"holder_email"`
		Password      string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	account, err := h.engine.OpenAccount(r.Context(), service.OpenAccountInput{
		HolderName:    req.HolderName,
		HolderAddress: req.HolderAddress,
		HolderEmail:   req.HolderEmail,
		Password:      req.Password,
		Role:          models.RoleUser,
	})
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

// Get returns the decrypted account view for the owner or an admin.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	account, err := h.engine.Account(r.Context(), actor, accountID)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// List returns every account. Admin only.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/missing-actor", "missing auth context")
		return
	}

	accounts, err := h.engine.Accounts(r.Context(), actor)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, accounts)
}

// Verify consumes the emailed verification token. The link lands here from
// the holder's mailbox, so the route is public.
func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid account id")
		return
	}
	token := r.URL.Query().Get("token")

	if err := h.engine.VerifyEmail(r.Context(), accountID, token); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": models.VerificationDone})
}

// Deposit credits the account.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutateBalance(w, r, h.engine.Deposit)
}

// Withdraw debits the account.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutateBalance(w, r, h.engine.Withdraw)
}

// Close retires the account; the row and its history remain.
func (h *AccountHandler) Close(w http.ResponseWriter, r *http.Request) {
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

	if err := h.engine.CloseAccount(r.Context(), actor, accountID); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": models.AccountStatusClosed})
}

type balanceOp func(ctx context.Context, actor models.Actor, accountID int64, amount decimal.Decimal) (*models.Account, error)

func (h *AccountHandler) mutateBalance(w http.ResponseWriter, r *http.Request, op balanceOp) {
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

	var req struct {
		Amount string `json:"amount"`
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

	account, err := op(r.Context(), actor, accountID, amount)
	if err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
