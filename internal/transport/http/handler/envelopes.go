package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-passwordless/internal/application/auth"
	"github.com/go-passwordless/internal/domain"
)

// DataEnvelope is the success wrapper: {"success": true, "message": ..., "data": {...}}.
type DataEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorEnvelope is the failure wrapper: {"error": {"code": ..., "retry_after": ...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// IssuedData describes a secret that is on its way to the user.
type IssuedData struct {
	Identifier  string    `json:"identifier"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	ResendAfter int       `json:"resend_after"`
}

// VerifiedData is returned by both verify endpoints.
type VerifiedData struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
	Action    string       `json:"action"`
	IsNewUser bool         `json:"is_new_user"`
}

// SessionData describes the session behind the presented bearer token.
type SessionData struct {
	SessionID string       `json:"session_id"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	User      *domain.User `json:"user"`
}

func toIssuedData(res *auth.IssueResult) IssuedData {
	return IssuedData{
		Identifier:  res.Identifier,
		ExpiresIn:   int(res.ExpiresIn / time.Second),
		ExpiresAt:   res.ExpiresAt,
		ResendAfter: int(res.ResendAfter / time.Second),
	}
}

func toVerifiedData(res *auth.VerifyResult) VerifiedData {
	return VerifiedData{
		Token:     res.Session.Bearer,
		TokenType: "Bearer",
		ExpiresAt: res.Session.ExpiresAt,
		User:      res.User,
		Action:    res.Action,
		IsNewUser: res.IsNewUser,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, msg string, data interface{}) {
	writeJSON(w, status, DataEnvelope{Success: true, Message: msg, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorEnvelope{Error: ErrorBody{Code: code, Message: msg}})
}
