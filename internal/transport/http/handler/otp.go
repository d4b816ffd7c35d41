package handler

import (
	"net/http"

	"github.com/go-passwordless/internal/application/auth"
)

// OTPHandler handles the phone registration and one-time code endpoints.
type OTPHandler struct {
	svc auth.Service
}

func NewOTPHandler(svc auth.Service) *OTPHandler { return &OTPHandler{svc: svc} }

func (h *OTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RegisterPhone(r.Context(), req.Phone)
	if err != nil {
		httpError(w, r, err, "send_failed")
		return
	}
	writeData(w, http.StatusCreated, "Registered. Verification code sent.", toIssuedData(res))
}

// Send issues a code for a registered phone. Calling it again is how clients resend.
func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RequestOTP(r.Context(), req.Phone)
	if err != nil {
		httpError(w, r, err, "send_failed")
		return
	}
	writeData(w, http.StatusOK, "Verification code sent.", toIssuedData(res))
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyOTP(r.Context(), req.Phone, req.OTP)
	if err != nil {
		httpError(w, r, err, "verification_failed")
		return
	}
	writeData(w, http.StatusOK, "Signed in.", toVerifiedData(res))
}
