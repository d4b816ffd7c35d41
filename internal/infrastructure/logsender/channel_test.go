package logsender

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/go-passwordless/internal/application/notification"
	"github.com/go-passwordless/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_NeverLogsSecret(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	err := New("sms").Send(context.Background(), notification.Message{
		CredentialID: "c1",
		Identifier:   "+15551234567",
		Kind:         domain.KindOTP,
		Secret:       "987654",
		ExpiresAt:    time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "credential_id=c1")
	assert.NotContains(t, buf.String(), "987654")
}
