package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-passwordless/internal/application/auth"
	"github.com/go-passwordless/internal/application/session"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/transport/http/handler"
	appmiddleware "github.com/go-passwordless/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds the application services the router exposes.
type Deps struct {
	Auth          auth.Service
	Sessions      session.Service
	TokenVerifier appmiddleware.TokenVerifier
}

// NewRouter builds and returns the application router. ctx bounds background
// housekeeping such as the per-IP limiter's cleanup loop.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10 per IP, on top of the per-identifier budgets.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10, cfg.TrustedProxies)

	healthH := handler.NewHealthHandler()
	magicH := handler.NewMagicLinkHandler(deps.Auth)
	otpH := handler.NewOTPHandler(deps.Auth)
	sessionH := handler.NewSessionHandler(deps.Sessions)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/auth/email/send-magic-link", magicH.Send)
			r.Post("/auth/email/verify-magic-link", magicH.Verify)
			r.Post("/auth/phone/register", otpH.Register)
			r.Post("/auth/phone/send-otp", otpH.Send)
			r.Post("/auth/phone/verify-otp", otpH.Verify)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		if deps.TokenVerifier != nil {
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.Auth(deps.TokenVerifier))

				r.Get("/sessions/current", sessionH.GetCurrent)
				r.Post("/sessions/logout", sessionH.Logout)
			})
		}
	})

	return r
}
