package domain

import "time"

// Channel is the out-of-band medium an identifier belongs to.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// User is keyed by its normalized identifier (lowercased email or E.164 phone).
// IsNew is set at creation and cleared by the first successful verification.
type User struct {
	UserID     string     `json:"id" dynamodbav:"user_id"`
	Identifier string     `json:"identifier" dynamodbav:"identifier"`
	Channel    Channel    `json:"channel" dynamodbav:"channel"`
	IsNew      bool       `json:"-" dynamodbav:"is_new"`
	VerifiedAt *time.Time `json:"verified_at" dynamodbav:"verified_at,omitempty"`
	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
}

// Verified reports whether the identifier has been confirmed at least once.
func (u *User) Verified() bool { return u.VerifiedAt != nil }
