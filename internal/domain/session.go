package domain

import "time"

// Session is the hand-off produced after a successful verification.
// Logout flips Enable off; the row is kept until its TTL.
type Session struct {
	SessionID string     `json:"id" dynamodbav:"session_id"`
	UserID    string     `json:"user_id" dynamodbav:"user_id"`
	Enable    bool       `json:"enable" dynamodbav:"enable"`
	Bearer    string     `json:"-" dynamodbav:"-"`
	CreatedAt time.Time  `json:"created" dynamodbav:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" dynamodbav:"revoked_at,omitempty"`
	User      *User      `json:"user,omitempty" dynamodbav:"-"`
}

// Active reports whether the session can still authenticate requests at now.
func (s *Session) Active(now time.Time) bool {
	return s.Enable && now.Before(s.ExpiresAt)
}
