package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-passwordless/internal/domain"
)

// httpError maps a service error to a status code and an error envelope. Infrastructure
// failures are logged and reported with fallbackCode only, never with their detail.
func httpError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	var rl *domain.RateLimitedError
	switch {
	case errors.As(err, &rl):
		secs := rl.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, ErrorEnvelope{Error: ErrorBody{
			Code:       "rate_limited",
			Message:    "Too many attempts. Please try again later.",
			RetryAfter: secs,
		}})
	case errors.Is(err, domain.ErrInvalidCredential):
		writeError(w, http.StatusUnprocessableEntity, "invalid_token", "The code or link is invalid.")
	case errors.Is(err, domain.ErrExpiredCredential):
		writeError(w, http.StatusUnprocessableEntity, "expired_token", "The code or link has expired.")
	case errors.Is(err, domain.ErrCredentialUsed):
		writeError(w, http.StatusUnprocessableEntity, "used_token", "The code or link has already been used.")
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "No account is registered for this identifier.")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "identifier_taken", "An account already exists for this identifier.")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid_session", "")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", fallbackCode,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, fallbackCode, "Something went wrong. Please try again.")
	}
}
