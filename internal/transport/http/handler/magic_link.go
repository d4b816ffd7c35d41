package handler

import (
	"net/http"

	"github.com/go-passwordless/internal/application/auth"
)

// MagicLinkHandler handles the email magic-link endpoints.
type MagicLinkHandler struct {
	svc auth.Service
}

func NewMagicLinkHandler(svc auth.Service) *MagicLinkHandler { return &MagicLinkHandler{svc: svc} }

func (h *MagicLinkHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendMagicLinkRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RequestMagicLink(r.Context(), req.Email)
	if err != nil {
		httpError(w, r, err, "send_failed")
		return
	}
	writeData(w, http.StatusOK, "Magic link sent to your email.", toIssuedData(res))
}

func (h *MagicLinkHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyMagicLinkRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.VerifyMagicLink(r.Context(), req.Email, req.Token)
	if err != nil {
		httpError(w, r, err, "verification_failed")
		return
	}
	writeData(w, http.StatusOK, "Signed in.", toVerifiedData(res))
}
