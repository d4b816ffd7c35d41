package handler

import (
	"net/http"

	"github.com/go-passwordless/internal/application/session"
	"github.com/go-passwordless/internal/transport/http/middleware"
)

// SessionHandler handles session endpoints.
type SessionHandler struct {
	svc session.Service
}

func NewSessionHandler(svc session.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

func (h *SessionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_session", "")
		return
	}
	sess, err := h.svc.GetCurrent(r.Context(), claims.SessionID, claims.Identifier)
	if err != nil {
		httpError(w, r, err, "internal_error")
		return
	}
	data := SessionData{SessionID: sess.SessionID, User: sess.User}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time.UTC()
		data.ExpiresAt = &exp
	}
	writeData(w, http.StatusOK, "", data)
}

// Logout disables the session behind the presented bearer token.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_session", "")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, r, err, "internal_error")
		return
	}
	writeData(w, http.StatusOK, "Logged out.", nil)
}
