package sns

import (
	"context"
	"fmt"
	"time"

	"github.com/go-passwordless/internal/application/notification"
)

// OTPChannel texts a one-time code to the phone number in the message.
type OTPChannel struct {
	sender SMSSender
	now    func() time.Time
}

func NewOTPChannel(sender SMSSender) *OTPChannel {
	return &OTPChannel{sender: sender, now: time.Now}
}

// Text is the SMS body for code, valid for the given minutes.
func Text(code string, minutes int) string {
	return fmt.Sprintf("Your verification code is: %s. This code will expire in %d minutes. Do not share this code with anyone.", code, minutes)
}

func (c *OTPChannel) Send(ctx context.Context, msg notification.Message) error {
	return c.sender.SendSMS(ctx, msg.Identifier, Text(msg.Secret, notification.MinutesLeft(msg.ExpiresAt, c.now())))
}
