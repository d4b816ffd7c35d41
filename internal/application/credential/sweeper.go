package credential

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically deletes expired credentials. It is maintenance only;
// expiry is enforced at verification time regardless of whether it runs.
type Sweeper struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewSweeper(store Store, interval, timeout time.Duration) *Sweeper {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Sweeper{store: store, interval: interval, timeout: timeout, now: time.Now}
}

// Sweep runs one purge pass and returns how many credentials were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.store.PurgeExpired(sctx, s.now().UTC())
	if err != nil {
		return 0, storageErr("purge expired credentials", err)
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				slog.Warn("credential sweep failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("purged expired credentials", "count", n)
			}
		}
	}
}
