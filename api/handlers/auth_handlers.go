package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"hackhub/core/idp"
	"hackhub/core/utils"
)

// TokenIssuer mints bearer tokens from credentials. Only the embedded identity
// provider implements it; with a remote provider login happens out of band.
type TokenIssuer interface {
	IssueToken(ctx context.Context, email, password string) (string, error)
}

type AuthHandler struct {
	issuer TokenIssuer
	logger *utils.Logger
}

func NewAuthHandler(issuer TokenIssuer, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{issuer: issuer, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.issuer == nil {
		writeError(w, http.StatusNotFound, "login not available")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := h.issuer.IssueToken(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, idp.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Errorf("login %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}
