package healthsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"posyandu-logistics/internal/metrics"
)

// DefaultReconcileInterval applies when no positive interval is configured.
const DefaultReconcileInterval = 10 * time.Minute

type SourceLister interface {
	ListPosts(ctx context.Context) ([]SourcePost, error)
}

type ShadowReader interface {
	Shadow(ctx context.Context, externalID string) (*ShadowRecord, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, p SourcePost) error
}

// Report counts what one reconciliation pass did.
type Report struct {
	InSync  int
	Pushed  int
	Failed  int
	Checked int
}

// Reconciler repairs pushes that were given up on: it compares every source
// post with its shadow record and re-pushes missing or stale ones.
type Reconciler struct {
	source   SourceLister
	shadows  ShadowReader
	deliver  Deliverer
	workers  int
	interval time.Duration
	metrics  *metrics.Metrics
}

func NewReconciler(source SourceLister, shadows ShadowReader, deliver Deliverer, workers int, interval time.Duration, m *metrics.Metrics) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{
		source:   source,
		shadows:  shadows,
		deliver:  deliver,
		workers:  workers,
		interval: interval,
		metrics:  m,
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	posts, err := r.source.ListPosts(ctx)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	record := func(action string) {
		mu.Lock()
		defer mu.Unlock()
		report.Checked++
		switch action {
		case "in_sync":
			report.InSync++
		case "pushed":
			report.Pushed++
		default:
			report.Failed++
		}
		r.metrics.ReconcileRecord(action)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, p := range posts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			record(r.reconcile(gctx, p))
			return nil
		})
	}
	err = g.Wait()
	return report, err
}

func (r *Reconciler) reconcile(ctx context.Context, p SourcePost) string {
	shadow, err := r.shadows.Shadow(ctx, p.ExternalID)
	switch {
	case errors.Is(err, ErrShadowNotFound):
	case err != nil:
		slog.WarnContext(ctx, "shadow lookup failed",
			slog.String("external_id", p.ExternalID),
			slog.String("error", err.Error()),
		)
		return "lookup_failed"
	case !p.UpdatedAt.After(shadow.LastSyncedAt):
		return "in_sync"
	}

	if err := r.deliver.Deliver(ctx, p); err != nil {
		slog.ErrorContext(ctx, "reconcile push failed",
			slog.String("external_id", p.ExternalID),
			slog.String("error", err.Error()),
		)
		return "push_failed"
	}
	return "pushed"
}

// Run reconciles immediately and then on every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		report, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "reconciliation pass failed", slog.String("error", err.Error()))
		} else {
			slog.InfoContext(ctx, "reconciliation pass finished",
				slog.Int("checked", report.Checked),
				slog.Int("pushed", report.Pushed),
				slog.Int("failed", report.Failed),
				slog.Duration("took", time.Since(start)),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
