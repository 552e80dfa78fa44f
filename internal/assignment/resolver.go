package assignment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"posyandu-logistics/internal/common"
	"posyandu-logistics/internal/metrics"
)

const (
	DefaultCandidateLimit = 3
	sweepWorkers          = 4
)

type Oracle interface {
	TravelTime(ctx context.Context, origin, dest common.Location) time.Duration
}

type Config struct {
	CandidateLimit int
	// SweepRadiusKM scopes a hub-triggered sweep to nearby posts; 0 sweeps all.
	SweepRadiusKM float64
	SweepTimeout  time.Duration
}

// SweepSummary counts the outcome of a reassignment sweep.
type SweepSummary struct {
	Evaluated int
	Changed   int
	Failed    int
}

// Resolver picks the hub with the shortest driving time for each health
// post. Candidates come from a straight-line pre-filter; the oracle ranks
// them.
type Resolver struct {
	store   Store
	oracle  Oracle
	cfg     Config
	metrics *metrics.Metrics

	sweeps sync.WaitGroup
}

func NewResolver(store Store, oracle Oracle, cfg Config, m *metrics.Metrics) *Resolver {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 5 * time.Minute
	}
	return &Resolver{store: store, oracle: oracle, cfg: cfg, metrics: m}
}

// Resolve recomputes the hub for one post and returns the hub assigned
// afterwards. An unknown post or an empty hub table leaves things as they
// are.
func (r *Resolver) Resolve(ctx context.Context, postID uuid.UUID) (uuid.UUID, error) {
	hubID, _, err := r.resolve(ctx, postID)
	return hubID, err
}

func (r *Resolver) resolve(ctx context.Context, postID uuid.UUID) (uuid.UUID, bool, error) {
	post, err := r.store.GetPost(ctx, postID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if post == nil {
		r.metrics.AssignmentResolved("missing")
		return uuid.Nil, false, nil
	}

	current := uuid.Nil
	if post.AssignedHubID != nil {
		current = *post.AssignedHubID
	}

	origin := post.Location()
	candidates, err := r.store.NearestHubs(ctx, origin, r.cfg.CandidateLimit)
	if err != nil {
		return current, false, err
	}
	if len(candidates) == 0 {
		r.metrics.AssignmentResolved("no_candidates")
		slog.WarnContext(ctx, "no hubs available for health post", slog.String("post_id", postID.String()))
		return current, false, nil
	}

	durations := make([]time.Duration, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		g.Go(func() error {
			durations[i] = r.oracle.TravelTime(gctx, origin, c.Location())
			return nil
		})
	}
	_ = g.Wait()

	best := 0
	for i := 1; i < len(durations); i++ {
		if durations[i] < durations[best] {
			best = i
		}
	}
	chosen := candidates[best]

	changed, err := r.store.SetAssignedHub(ctx, postID, chosen.ID)
	if err != nil {
		return current, false, err
	}
	if !changed {
		r.metrics.AssignmentResolved("unchanged")
		return chosen.ID, false, nil
	}

	r.metrics.AssignmentResolved("changed")
	slog.InfoContext(ctx, "health post reassigned",
		slog.String("post_id", postID.String()),
		slog.String("from_hub", current.String()),
		slog.String("to_hub", chosen.ID.String()),
		slog.String("hub_name", chosen.Name),
		slog.Duration("travel_time", durations[best]),
	)
	return chosen.ID, true, nil
}

// ReassignAll re-resolves every post, or the posts around a location when a
// sweep radius is configured. Per-post failures are logged and counted.
func (r *Resolver) ReassignAll(ctx context.Context, around *common.Location) (SweepSummary, error) {
	var summary SweepSummary

	ids, err := r.store.ListPostIDs(ctx, around, r.cfg.SweepRadiusKM)
	if err != nil {
		return summary, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepWorkers)
	for _, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, changed, err := r.resolve(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			summary.Evaluated++
			if err != nil {
				summary.Failed++
				slog.ErrorContext(gctx, "reassignment failed",
					slog.String("post_id", id.String()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if changed {
				summary.Changed++
			}
			return nil
		})
	}
	err = g.Wait()
	return summary, err
}

// ReassignAround starts a background sweep after a hub appeared or moved.
// It is detached from the caller's context and bounded by the sweep timeout.
func (r *Resolver) ReassignAround(loc common.Location) {
	r.sweeps.Add(1)
	go func() {
		defer r.sweeps.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.SweepTimeout)
		defer cancel()

		start := time.Now()
		summary, err := r.ReassignAll(ctx, &loc)
		if err != nil {
			slog.Error("reassignment sweep aborted",
				slog.String("around", loc.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		slog.Info("reassignment sweep finished",
			slog.String("around", loc.String()),
			slog.Int("evaluated", summary.Evaluated),
			slog.Int("changed", summary.Changed),
			slog.Int("failed", summary.Failed),
			slog.Duration("took", time.Since(start)),
		)
	}()
}

// Wait blocks until background sweeps have finished.
func (r *Resolver) Wait() {
	r.sweeps.Wait()
}
