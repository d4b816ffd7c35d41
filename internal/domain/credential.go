package domain

import "time"

// CredentialKind distinguishes the two secret flavours a user can hold.
type CredentialKind string

const (
	KindMagicLink CredentialKind = "magic_link"
	KindOTP       CredentialKind = "otp"
)

// Valid reports whether k is a known kind.
func (k CredentialKind) Valid() bool {
	return k == KindMagicLink || k == KindOTP
}

// Credential is the persisted, hashed form of an issued secret.
// SecretHash is the hex SHA-256 of the plaintext; the plaintext itself is never stored.
// Stores map it to their own record layout.
type Credential struct {
	CredentialID string         `json:"id"`
	UserID       string         `json:"user_id"`
	Kind         CredentialKind `json:"kind"`
	SecretHash   string         `json:"-"`
	CreatedAt    time.Time      `json:"created"`
	ExpiresAt    time.Time      `json:"expires_at"`
	UsedAt       *time.Time     `json:"used_at,omitempty"`
}

// Expired reports whether now is at or past ExpiresAt.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// Used reports whether the credential has been consumed.
func (c *Credential) Used() bool { return c.UsedAt != nil }

// Active is the single predicate stores and services agree on: unused and ExpiresAt strictly after now.
func (c *Credential) Active(now time.Time) bool {
	return !c.Used() && !c.Expired(now)
}
