package healthsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"posyandu-logistics/internal/metrics"
)

type Pusher interface {
	Push(ctx context.Context, p SourcePost) error
}

// Dispatcher pushes health post changes to logistics with bounded
// exponential retry. Client errors other than 429 are not retried.
type Dispatcher struct {
	pusher      Pusher
	maxAttempts int
	baseDelay   time.Duration
	metrics     *metrics.Metrics
}

func NewDispatcher(pusher Pusher, maxAttempts int, baseDelay time.Duration, m *metrics.Metrics) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Dispatcher{
		pusher:      pusher,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		metrics:     m,
	}
}

// Deliver pushes p and returns the last error once attempts are exhausted.
func (d *Dispatcher) Deliver(ctx context.Context, p SourcePost) error {
	attempt := 0
	op := func() error {
		attempt++
		err := d.pusher.Push(ctx, p)
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "posyandu sync attempt failed",
			slog.String("external_id", p.ExternalID),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", wait),
			slog.String("error", err.Error()),
		)
	}
	return backoff.RetryNotify(op, backoff.WithContext(d.policy(), ctx), notify)
}

// SyncHealthPost is the fire-and-forget entry point used by the health
// side. A push that still fails after all retries is logged and counted,
// never returned; the reconciler repairs it later.
func (d *Dispatcher) SyncHealthPost(ctx context.Context, p SourcePost) error {
	if err := d.Deliver(ctx, p); err != nil {
		d.metrics.SyncPush("failed")
		slog.ErrorContext(ctx, "posyandu sync gave up, shadow registry may be stale",
			slog.String("external_id", p.ExternalID),
			slog.Int("attempts", d.maxAttempts),
			slog.String("error", err.Error()),
		)
		return nil
	}
	d.metrics.SyncPush("ok")
	slog.InfoContext(ctx, "posyandu synced", slog.String("external_id", p.ExternalID))
	return nil
}

func (d *Dispatcher) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(d.maxAttempts-1))
}
