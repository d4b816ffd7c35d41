package smtp

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/go-passwordless/internal/application/notification"
)

// MagicLinkChannel emails a sign-in link that carries the identifier and the plaintext token.
type MagicLinkChannel struct {
	mailer  Mailer
	appURL  string
	appName string
	now     func() time.Time
}

func NewMagicLinkChannel(mailer Mailer, appURL, appName string) *MagicLinkChannel {
	return &MagicLinkChannel{mailer: mailer, appURL: appURL, appName: appName, now: time.Now}
}

// LinkURL is the address the recipient clicks: APP_URL/auth/magic-link/verify?email=...&token=...
func (c *MagicLinkChannel) LinkURL(email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return c.appURL + "/auth/magic-link/verify?" + q.Encode()
}

func (c *MagicLinkChannel) Send(ctx context.Context, msg notification.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link := html.EscapeString(c.LinkURL(msg.Identifier, msg.Secret))
	minutes := notification.MinutesLeft(msg.ExpiresAt, c.now())

	subject := "Your Magic Link for " + c.appName
	body := fmt.Sprintf(`
		<h3>Hello!</h3>
		<p>You are receiving this email because we received a magic link request for your account.</p>
		<p><a href="%s">Sign In</a></p>
		<p>This magic link will expire in %d minutes.</p>
		<p>If you did not request a magic link, no further action is required.</p>
		<p>Regards,<br>%s</p>
	`, link, minutes, html.EscapeString(c.appName))

	return c.mailer.SendEmail(msg.Identifier, subject, body)
}
