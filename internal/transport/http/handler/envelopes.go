package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/otp-identity/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthEnvelope wraps responses that hand out a fresh session token.
type AuthEnvelope struct {
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
	Token   string       `json:"token"`
}

// Stable error codes returned alongside the human-readable message.
const (
	codeBadRequest       = "bad_request"
	codeValidation       = "validation_failed"
	codeUnauthorized     = "unauthorized"
	codeNotFound         = "not_found"
	codeRateLimited      = "rate_limited"
	codeInvalidOTP       = "invalid_otp"
	codeCacheUnavailable = "cache_unavailable"
	codeInternal         = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, MessageEnvelope{Message: msg, Error: code})
}

// httpError maps a service error onto a status and a stable message.
// Unrecognised errors are logged and reported as a generic 500.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidOTP):
		writeError(w, http.StatusBadRequest, codeInvalidOTP, "Invalid or expired OTP")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, codeBadRequest, "Bad request")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Please login")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "Not found")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, codeRateLimited, "Too many requests. Please wait before requesting a new OTP")
	case errors.Is(err, domain.ErrCacheUnavailable):
		slog.Error("cache unavailable", "err", err)
		writeError(w, http.StatusServiceUnavailable, codeCacheUnavailable, "Service temporarily unavailable")
	default:
		slog.Error("unhandled service error", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
	}
}
