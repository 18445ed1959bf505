package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelcached/modelcached/pkg/api/auth"
)

// AuthHandler serves the token refresh route.
type AuthHandler struct {
	jwtService *auth.JWTService
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{jwtService: jwtService}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /v1/auth/refresh. It exchanges a valid refresh token
// for a new access/refresh pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorStatus(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeErrorStatus(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			writeErrorStatus(w, http.StatusUnauthorized, "refresh token has expired")
			return
		}
		writeErrorStatus(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	pair, err := h.jwtService.GenerateTokenPair(claims.Subject)
	if err != nil {
		writeErrorStatus(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	writeOK(w, pair)
}
