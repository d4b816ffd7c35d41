package logsender

import (
	"context"
	"log/slog"

	"github.com/go-passwordless/internal/application/notification"
)

// Channel stands in for a real provider in development. It logs that a message
// would have been sent, never the secret itself.
type Channel struct {
	medium string
}

func New(medium string) *Channel {
	return &Channel{medium: medium}
}

func (c *Channel) Send(ctx context.Context, msg notification.Message) error {
	slog.InfoContext(ctx, "notification logged instead of sent",
		"medium", c.medium,
		"credential_id", msg.CredentialID,
		"to", msg.Identifier,
		"kind", msg.Kind,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
