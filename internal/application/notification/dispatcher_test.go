package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-passwordless/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRevoker struct{ mock.Mock }

func (m *mockRevoker) Revoke(ctx context.Context, c *domain.Credential) error {
	return m.Called(ctx, c).Error(0)
}

// recordingChannel fails `failures` times, then records every message.
type recordingChannel struct {
	mu       sync.Mutex
	failures int
	sent     []Message
	calls    atomic.Int32
}

func (r *recordingChannel) Send(_ context.Context, msg Message) error {
	r.calls.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("smtp: 451 try again later")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testDelivery(id string) Delivery {
	c := &domain.Credential{
		CredentialID: id,
		UserID:       "u1",
		Kind:         domain.KindMagicLink,
		ExpiresAt:    time.Now().Add(15 * time.Minute),
	}
	return Delivery{
		Channel:    domain.ChannelEmail,
		Message:    MessageFor(c, "a@x.com", "secret"),
		Credential: c,
	}
}

func fastConfig() Config {
	return Config{Workers: 2, QueueSize: 8, MaxAttempts: 3, Backoff: time.Millisecond, SendTimeout: time.Second}
}

func TestDispatcher_DeliversMessage(t *testing.T) {
	ch := &recordingChannel{}
	d := NewDispatcher(fastConfig(), map[domain.Channel]Channel{domain.ChannelEmail: ch}, nil)

	require.NoError(t, d.Enqueue(testDelivery("c1")))
	require.NoError(t, d.Close(context.Background()))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "c1", ch.sent[0].CredentialID)
	assert.Equal(t, "a@x.com", ch.sent[0].Identifier)
	assert.Equal(t, "secret", ch.sent[0].Secret)
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	ch := &recordingChannel{failures: 2}
	rv := &mockRevoker{}
	d := NewDispatcher(fastConfig(), map[domain.Channel]Channel{domain.ChannelEmail: ch}, rv)

	require.NoError(t, d.Enqueue(testDelivery("c1")))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(3), ch.calls.Load())
	assert.Len(t, ch.sent, 1)
	rv.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
}

func TestDispatcher_RevokesAfterRetriesExhausted(t *testing.T) {
	ch := &recordingChannel{failures: 10}
	rv := &mockRevoker{}
	del := testDelivery("c1")
	rv.On("Revoke", mock.Anything, del.Credential).Return(nil).Once()
	d := NewDispatcher(fastConfig(), map[domain.Channel]Channel{domain.ChannelEmail: ch}, rv)

	require.NoError(t, d.Enqueue(del))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(3), ch.calls.Load())
	assert.Empty(t, ch.sent)
	rv.AssertExpectations(t)
}

func TestDispatcher_DeliversCredentialOnce(t *testing.T) {
	ch := &recordingChannel{}
	d := NewDispatcher(fastConfig(), map[domain.Channel]Channel{domain.ChannelEmail: ch}, nil)

	del := testDelivery("c1")
	require.NoError(t, d.Enqueue(del))
	require.NoError(t, d.Enqueue(del))
	require.NoError(t, d.Enqueue(testDelivery("c2")))
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, ch.sent, 2)
}

func TestDispatcher_EnqueueFailures(t *testing.T) {
	block := make(chan struct{})
	slow := ChannelFunc(func(ctx context.Context, _ Message) error {
		<-block
		return nil
	})
	d := NewDispatcher(Config{Workers: 1, QueueSize: 1}, map[domain.Channel]Channel{domain.ChannelEmail: slow}, nil)

	err := d.Enqueue(Delivery{Channel: domain.ChannelPhone, Message: Message{CredentialID: "x"}})
	assert.ErrorIs(t, err, domain.ErrDelivery, "no phone channel registered")

	// One in the worker, one in the queue, the third must be refused without blocking.
	require.NoError(t, d.Enqueue(testDelivery("c1")))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Enqueue(testDelivery("c2")))
	assert.ErrorIs(t, d.Enqueue(testDelivery("c3")), domain.ErrDelivery)

	close(block)
	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Enqueue(testDelivery("c4")), domain.ErrDelivery, "closed dispatcher refuses work")
}

func TestDispatcher_CloseHonoursDeadline(t *testing.T) {
	stuck := ChannelFunc(func(ctx context.Context, _ Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cfg := fastConfig()
	cfg.Workers = 1
	cfg.Backoff = time.Hour
	d := NewDispatcher(cfg, map[domain.Channel]Channel{domain.ChannelEmail: stuck}, nil)
	require.NoError(t, d.Enqueue(testDelivery("c1")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
