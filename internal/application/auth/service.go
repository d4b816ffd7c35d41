package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-passwordless/internal/application/credential"
	"github.com/go-passwordless/internal/application/notification"
	"github.com/go-passwordless/internal/application/ratelimit"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/phone"
	"github.com/go-passwordless/internal/pkg/validate"
)

// Outcome of a successful verification, as reported to clients.
const (
	ActionRegistered    = "registered"
	ActionAuthenticated = "authenticated"
)

// IssueResult describes a secret that was issued and queued for delivery.
type IssueResult struct {
	Identifier  string
	ExpiresAt   time.Time
	ExpiresIn   time.Duration
	ResendAfter time.Duration
	UserCreated bool
}

// VerifyResult is what a client gets back for a winning verification.
type VerifyResult struct {
	User      *domain.User
	Session   *domain.Session
	IsNewUser bool
	Action    string
}

type Service interface {
	RequestMagicLink(ctx context.Context, email string) (*IssueResult, error)
	VerifyMagicLink(ctx context.Context, email, token string) (*VerifyResult, error)
	RegisterPhone(ctx context.Context, phoneNumber string) (*IssueResult, error)
	RequestOTP(ctx context.Context, phoneNumber string) (*IssueResult, error)
	VerifyOTP(ctx context.Context, phoneNumber, otp string) (*VerifyResult, error)
}

type service struct {
	issuer      Issuer
	verifier    Verifier
	limiter     Limiter
	dispatcher  Dispatcher
	sessions    SessionStarter
	limits      config.Limits
	resendAfter time.Duration
}

// ServiceDeps groups the collaborators of the auth service.
type ServiceDeps struct {
	Issuer      Issuer
	Verifier    Verifier
	Limiter     Limiter
	Dispatcher  Dispatcher
	Sessions    SessionStarter
	Limits      config.Limits
	ResendAfter time.Duration
}

func NewService(d ServiceDeps) Service {
	return &service{
		issuer:      d.Issuer,
		verifier:    d.Verifier,
		limiter:     d.Limiter,
		dispatcher:  d.Dispatcher,
		sessions:    d.Sessions,
		limits:      d.Limits,
		resendAfter: d.ResendAfter,
	}
}

func (s *service) RequestMagicLink(ctx context.Context, email string) (*IssueResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.attempt(ctx, ratelimit.Key(ratelimit.ActionMagicLink, email), s.limits.Send); err != nil {
		return nil, err
	}
	return s.issue(ctx, credential.IssueRequest{
		Identifier: email,
		Channel:    domain.ChannelEmail,
		Kind:       domain.KindMagicLink,
		CreateUser: true,
	})
}

func (s *service) VerifyMagicLink(ctx context.Context, email, token string) (*VerifyResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, ratelimit.ActionMagicLinkVerify, credential.VerifyRequest{
		Identifier: email,
		Kind:       domain.KindMagicLink,
		Secret:     token,
	})
}

// RegisterPhone creates the user for a new phone number and sends the first OTP.
func (s *service) RegisterPhone(ctx context.Context, phoneNumber string) (*IssueResult, error) {
	p, err := normalizePhone(phoneNumber)
	if err != nil {
		return nil, err
	}
	if err := s.attempt(ctx, ratelimit.Key(ratelimit.ActionOTP, p), s.limits.Send); err != nil {
		return nil, err
	}
	if _, err := s.issuer.Register(ctx, p, domain.ChannelPhone); err != nil {
		return nil, err
	}
	res, err := s.issue(ctx, credential.IssueRequest{
		Identifier: p,
		Channel:    domain.ChannelPhone,
		Kind:       domain.KindOTP,
	})
	if err != nil {
		return nil, err
	}
	res.UserCreated = true
	return res, nil
}

// RequestOTP sends a code to an already registered phone number. Resending is the same call.
func (s *service) RequestOTP(ctx context.Context, phoneNumber string) (*IssueResult, error) {
	p, err := normalizePhone(phoneNumber)
	if err != nil {
		return nil, err
	}
	if err := s.attempt(ctx, ratelimit.Key(ratelimit.ActionOTP, p), s.limits.Send); err != nil {
		return nil, err
	}
	return s.issue(ctx, credential.IssueRequest{
		Identifier: p,
		Channel:    domain.ChannelPhone,
		Kind:       domain.KindOTP,
	})
}

func (s *service) VerifyOTP(ctx context.Context, phoneNumber, otp string) (*VerifyResult, error) {
	p, err := normalizePhone(phoneNumber)
	if err != nil {
		return nil, err
	}
	return s.verify(ctx, ratelimit.ActionOTPVerify, credential.VerifyRequest{
		Identifier: p,
		Kind:       domain.KindOTP,
		Secret:     otp,
	})
}

func (s *service) attempt(ctx context.Context, key string, policy config.Policy) error {
	d, err := s.limiter.Attempt(ctx, key, policy)
	if err != nil {
		return err
	}
	if err := d.Err(); err != nil {
		slog.Info("rate limit hit", "key", key, "count", d.Count, "retry_after", d.RetryAfter)
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// issue persists a fresh credential and queues it. A credential that cannot be queued
// is revoked at once so it never sits in the active slot undelivered.
func (s *service) issue(ctx context.Context, req credential.IssueRequest) (*IssueResult, error) {
	iss, err := s.issuer.Issue(ctx, req)
	if err != nil {
		return nil, err
	}
	err = s.dispatcher.Enqueue(notification.Delivery{
		Channel:    req.Channel,
		Message:    notification.MessageFor(iss.Credential, req.Identifier, iss.Secret),
		Credential: iss.Credential,
	})
	if err != nil {
		// The client may already be gone; the revoke must still land.
		if rerr := s.issuer.Revoke(context.WithoutCancel(ctx), iss.Credential); rerr != nil {
			slog.Error("failed to revoke unsent credential", "credential_id", iss.Credential.CredentialID, "err", rerr)
		}
		return nil, fmt.Errorf("queue %s: %w", req.Kind, err)
	}
	return &IssueResult{
		Identifier:  req.Identifier,
		ExpiresAt:   iss.Credential.ExpiresAt,
		ExpiresIn:   s.issuer.Expiry(req.Kind),
		ResendAfter: s.resendAfter,
	}, nil
}

func (s *service) verify(ctx context.Context, action string, req credential.VerifyRequest) (*VerifyResult, error) {
	key := ratelimit.Key(action, req.Identifier)
	if err := s.attempt(ctx, key, s.limits.Verify); err != nil {
		return nil, err
	}
	v, err := s.verifier.Verify(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Clear(ctx, key); err != nil {
		slog.Warn("failed to clear verify limit", "key", key, "err", err)
	}

	sess, err := s.sessions.Start(ctx, v.User)
	if err != nil {
		return nil, err
	}
	action = ActionAuthenticated
	if v.IsNewUser {
		action = ActionRegistered
	}
	return &VerifyResult{User: v.User, Session: sess, IsNewUser: v.IsNewUser, Action: action}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return "", fmt.Errorf("email %w: %v", domain.ErrBadRequest, err)
	}
	return email, nil
}

func normalizePhone(raw string) (string, error) {
	p := phone.Normalize(raw)
	if err := validate.Var(p, "required,phone"); err != nil {
		return "", fmt.Errorf("phone %w: %v", domain.ErrBadRequest, err)
	}
	return p, nil
}
