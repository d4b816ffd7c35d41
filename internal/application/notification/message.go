package notification

import (
	"context"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// Message is what a channel needs to deliver one secret. Secret is plaintext and must never be logged.
type Message struct {
	CredentialID string
	Identifier   string
	Kind         domain.CredentialKind
	Secret       string
	ExpiresAt    time.Time
}

// Channel delivers a Message out-of-band (email, SMS, ...).
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// ChannelFunc adapts a plain function to Channel.
type ChannelFunc func(ctx context.Context, msg Message) error

func (f ChannelFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Revoker drops a credential that could not be delivered.
type Revoker interface {
	Revoke(ctx context.Context, c *domain.Credential) error
}

// MessageFor builds the delivery payload for a freshly issued credential.
func MessageFor(c *domain.Credential, identifier, secret string) Message {
	return Message{
		CredentialID: c.CredentialID,
		Identifier:   identifier,
		Kind:         c.Kind,
		Secret:       secret,
		ExpiresAt:    c.ExpiresAt,
	}
}

// MinutesLeft is the lifetime quoted to the recipient, rounded up so a fresh
// 15 minute credential reads "15 minutes" rather than "14".
func MinutesLeft(expiresAt, now time.Time) int {
	d := expiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
