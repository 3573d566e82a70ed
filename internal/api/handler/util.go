package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/silverstone/ledger/internal/api/middleware"
	"github.com/silverstone/ledger/internal/api/problem"
	"github.com/silverstone/ledger/internal/models"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an RFC 7807 error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, slug, message string) {
	problem.Write(w, r, status, problem.Type(slug), http.StatusText(status), message)
}

// RespondDomainError maps the service error taxonomy onto HTTP statuses.
func RespondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "resource/not-found", err.Error())
	case errors.Is(err, models.ErrInsufficientBalance):
		RespondError(w, r, http.StatusUnprocessableEntity, "ledger/insufficient-balance", err.Error())
	case errors.Is(err, models.ErrInvalidState):
		RespondError(w, r, http.StatusConflict, "ledger/invalid-state", err.Error())
	case errors.Is(err, models.ErrValidation):
		RespondError(w, r, http.StatusBadRequest, "request/validation", err.Error())
	case errors.Is(err, models.ErrAccountClosed):
		RespondError(w, r, http.StatusConflict, "account/closed", err.Error())
	case errors.Is(err, models.ErrEmailTaken):
		RespondError(w, r, http.StatusConflict, "account/email-taken", err.Error())
	case errors.Is(err, models.ErrForbidden):
		RespondError(w, r, http.StatusForbidden, "auth/forbidden", "insufficient permissions")
	default:
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func requestActor(r *http.Request) (models.Actor, bool) {
	return middleware.ActorFromContext(r.Context())
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
