package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-passwordless/internal/pkg/validate"
)

type sendMagicLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type verifyMagicLinkRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Token string `json:"token" validate:"required,max=255"`
}

type phoneRequest struct {
	Phone string `json:"phone" validate:"required,max=32"`
}

type verifyOTPRequest struct {
	Phone string `json:"phone" validate:"required,max=32"`
	OTP   string `json:"otp" validate:"required,len=6,number"`
}

// decode reads a JSON body into req and runs its validate tags, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}
