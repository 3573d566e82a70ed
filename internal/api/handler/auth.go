package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/silverstone/ledger/internal/api/middleware"
	"github.com/silverstone/ledger/internal/service"
)

type AuthHandler struct {
	engine *service.Engine
}

func NewAuthHandler(engine *service.Engine) *AuthHandler {
	return &AuthHandler{engine: engine}
}

// Login exchanges an email/password pair for a signed JWT carrying the
// account id and role claims.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	account, err := h.engine.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-credentials", "invalid email or password")
		return
	}

	accountID := strconv.FormatInt(account.ID, 10)
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID,
		"role":       account.Role,
		"sub":        accountID,
		"iss":        middleware.JWTIssuer(),
		"aud":        middleware.JWTAudience(),
		"iat":        now.Unix(),
		"exp":        now.Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(middleware.JWTSecret())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/sign-token", "Failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

// ForgotPassword emails a temporary password to a verified account. The
// response is uniform so the endpoint cannot be used to probe enrollment.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	_ = h.engine.SetTemporaryPassword(r.Context(), req.Email)
	RespondJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the email is enrolled, a temporary password has been sent",
	})
}

// ChangePassword replaces the caller's password after checking the current one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
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
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	if err := h.engine.ChangePassword(r.Context(), actor, accountID, req.CurrentPassword, req.NewPassword); err != nil {
		RespondDomainError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}
