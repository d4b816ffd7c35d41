package smtp

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/go-passwordless/internal/application/notification"
	"github.com/go-passwordless/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

func TestMagicLinkChannel_LinkURL(t *testing.T) {
	c := NewMagicLinkChannel(&mockMailer{}, "https://auth.example.com", "Acme")
	raw := c.LinkURL("a+b@x.com", "tok_en-1")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/auth/magic-link/verify", u.Path)
	assert.Equal(t, "a+b@x.com", u.Query().Get("email"))
	assert.Equal(t, "tok_en-1", u.Query().Get("token"))
}

func TestMagicLinkChannel_Send(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &mockMailer{}
	c := NewMagicLinkChannel(m, "https://auth.example.com", "Acme")
	c.now = func() time.Time { return now }

	m.On("SendEmail", "a@x.com", "Your Magic Link for Acme", mock.MatchedBy(func(body string) bool {
		return assert.Contains(t, body, "expire in 15 minutes") &&
			assert.Contains(t, body, "token=s3cr3t")
	})).Return(nil).Once()

	err := c.Send(context.Background(), notification.Message{
		CredentialID: "c1",
		Identifier:   "a@x.com",
		Kind:         domain.KindMagicLink,
		Secret:       "s3cr3t",
		ExpiresAt:    now.Add(15 * time.Minute),
	})
	require.NoError(t, err)
	m.AssertExpectations(t)
}
