package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/healthbot/healthbot/internal/auth"
	"github.com/healthbot/healthbot/internal/core"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

// identityError maps identity resolution failures. Every session problem is
// a 401; only store failures become a 500.
func identityError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, core.ErrUserNotFound):
		return http.StatusUnauthorized, "User not found"
	default:
		return http.StatusInternalServerError, "Failed to process user identity"
	}
}
