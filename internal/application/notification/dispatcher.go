package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-passwordless/internal/domain"
)

// Config tunes the dispatcher. Zero values fall back to sensible defaults.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration // delay before the second attempt; doubles each retry
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Delivery is one queued send: the message plus the credential to revoke if it never arrives.
type Delivery struct {
	Channel    domain.Channel
	Message    Message
	Credential *domain.Credential
}

// Dispatcher delivers secrets asynchronously through a buffered queue and a fixed
// worker pool. A credential id is delivered at most once; a failed send is retried
// with exponential backoff until MaxAttempts or the credential's expiry, after which
// the credential is revoked so it cannot linger undelivered.
type Dispatcher struct {
	cfg      Config
	channels map[domain.Channel]Channel
	revoker  Revoker
	queue    chan Delivery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	seenMu    sync.Mutex
	delivered map[string]time.Time // credential id -> expiry, in flight or sent

	now func() time.Time
}

func NewDispatcher(cfg Config, channels map[domain.Channel]Channel, revoker Revoker) *Dispatcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:       cfg,
		channels:  channels,
		revoker:   revoker,
		queue:     make(chan Delivery, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		delivered: make(map[string]time.Time),
		now:       time.Now,
	}
	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

// Enqueue hands a delivery to the workers without blocking. It fails with
// domain.ErrDelivery when no channel serves the medium, the queue is full,
// or the dispatcher is closed; the caller then owns revoking the credential.
func (d *Dispatcher) Enqueue(del Delivery) error {
	if _, ok := d.channels[del.Channel]; !ok {
		return fmt.Errorf("no %s channel configured: %w", del.Channel, domain.ErrDelivery)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("dispatcher closed: %w", domain.ErrDelivery)
	}
	select {
	case d.queue <- del:
		return nil
	default:
		return fmt.Errorf("notification queue full: %w", domain.ErrDelivery)
	}
}

// Close stops accepting work and waits for queued deliveries to finish. If ctx ends
// first, pending retries are abandoned and Close returns ctx.Err().
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for del := range d.queue {
		d.deliver(del)
	}
}

func (d *Dispatcher) deliver(del Delivery) {
	msg := del.Message
	if !d.claim(msg.CredentialID, msg.ExpiresAt) {
		slog.Debug("skipping duplicate delivery", "credential_id", msg.CredentialID)
		return
	}
	ch := d.channels[del.Channel]

	for attempt := 1; ; attempt++ {
		sctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
		err := ch.Send(sctx, msg)
		cancel()
		if err == nil {
			slog.Info("notification delivered",
				"credential_id", msg.CredentialID,
				"channel", del.Channel,
				"attempt", attempt,
			)
			return
		}
		slog.Warn("notification send failed",
			"credential_id", msg.CredentialID,
			"channel", del.Channel,
			"attempt", attempt,
			"err", err,
		)
		if attempt >= d.cfg.MaxAttempts || !d.now().Before(msg.ExpiresAt) {
			break
		}
		if !d.sleep(d.cfg.Backoff << (attempt - 1)) {
			break
		}
	}

	d.release(msg.CredentialID)
	slog.Error("notification undeliverable, revoking credential",
		"credential_id", msg.CredentialID,
		"channel", del.Channel,
	)
	if d.revoker == nil || del.Credential == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()
	if err := d.revoker.Revoke(rctx, del.Credential); err != nil {
		slog.Error("failed to revoke undeliverable credential", "credential_id", msg.CredentialID, "err", err)
	}
}

func (d *Dispatcher) sleep(wait time.Duration) bool {
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// claim records credentialID as in flight or delivered. It returns false when another
// worker already owns it. Entries are pruned once their credential has expired.
func (d *Dispatcher) claim(credentialID string, expiresAt time.Time) bool {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	if _, ok := d.delivered[credentialID]; ok {
		return false
	}
	now := d.now()
	for id, exp := range d.delivered {
		if exp.Before(now) {
			delete(d.delivered, id)
		}
	}
	d.delivered[credentialID] = expiresAt
	return true
}

func (d *Dispatcher) release(credentialID string) {
	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	delete(d.delivered, credentialID)
}
