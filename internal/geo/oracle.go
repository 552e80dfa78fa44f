package geo

import (
	"context"
	"log/slog"
	"math"
	"time"

	"posyandu-logistics/internal/common"
	"posyandu-logistics/internal/maps"
	"posyandu-logistics/internal/metrics"
)

// 1 degree is roughly 111 km; at roughly 40 km/h that is 10000 s per degree.
const fallbackSecondsPerDegree = 10000

// Oracle answers "how long does it take to drive from A to B". It never
// fails: provider trouble degrades to a straight-line estimate.
type Oracle struct {
	provider maps.TravelTimeProvider
	cache    *TieredCache[time.Duration]
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewOracle builds an oracle. A nil provider means every lookup that misses
// the cache uses the synthetic estimate.
func NewOracle(provider maps.TravelTimeProvider, cache *TieredCache[time.Duration], timeout time.Duration, m *metrics.Metrics) *Oracle {
	return &Oracle{
		provider: provider,
		cache:    cache,
		timeout:  timeout,
		metrics:  m,
	}
}

func (o *Oracle) TravelTime(ctx context.Context, origin, dest common.Location) time.Duration {
	key := TravelTimeKey(origin, dest)

	if d, ok := o.cache.Get(ctx, key); ok {
		o.metrics.TravelTimeLookup("cache")
		return d
	}

	if o.provider == nil {
		o.metrics.TravelTimeLookup("fallback")
		return FallbackTravelTime(origin, dest)
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	d, err := o.provider.TravelTime(callCtx, origin, dest)
	o.metrics.ProviderLatency("travel_time", time.Since(start).Seconds())
	if err != nil || d < 0 {
		slog.WarnContext(ctx, "travel time provider failed, using estimate",
			slog.String("key", key),
			slog.Any("error", err),
		)
		o.metrics.TravelTimeLookup("fallback")
		return FallbackTravelTime(origin, dest)
	}

	o.cache.Set(ctx, key, d)
	o.metrics.TravelTimeLookup("provider")
	return d
}

// TravelTimeKey identifies an origin/destination pair at ~11 m resolution.
func TravelTimeKey(origin, dest common.Location) string {
	return origin.Key() + "-" + dest.Key()
}

// FallbackTravelTime is the straight-line estimate in whole seconds.
func FallbackTravelTime(origin, dest common.Location) time.Duration {
	secs := math.Floor(common.EuclideanDegrees(origin, dest) * fallbackSecondsPerDegree)
	return time.Duration(secs) * time.Second
}
