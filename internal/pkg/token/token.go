package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// MagicLinkBytes is the amount of randomness behind a magic-link secret (256 bits).
	MagicLinkBytes = 32
	// MagicLinkLength is the encoded length: base64url without padding.
	MagicLinkLength = 43
	// OTPDigits is the length of a numeric one-time code.
	OTPDigits = 6
)

var otpSpace = big.NewInt(1_000_000)

// NewMagicLinkSecret returns a URL-safe secret carrying MagicLinkBytes of crypto/rand entropy.
func NewMagicLinkSecret() (string, error) {
	b := make([]byte, MagicLinkBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate magic link secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewOTP returns a zero-padded 6 digit code drawn uniformly from [0, 999999].
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Hash is the one-way function applied to every secret before it reaches a store.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
