package geo

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"posyandu-logistics/internal/common"
	"posyandu-logistics/internal/maps"
	"posyandu-logistics/internal/metrics"
)

var (
	ErrEmptyAddress = errors.New("address is empty")
	ErrNotFound     = errors.New("address could not be geocoded")
)

// Result types that pin a match to a street or building rather than an area.
var preciseTypes = map[string]bool{
	"street_address": true,
	"route":          true,
	"premise":        true,
	"sublocality":    true,
}

type GeocodeResult struct {
	Location         common.Location `json:"location"`
	FormattedAddress string          `json:"formatted_address"`
	Precise          bool            `json:"precise"`
}

type Geocoder struct {
	provider maps.Geocoder
	cache    *TieredCache[GeocodeResult]
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// NewGeocoder builds a geocoder. With a nil provider every uncached lookup
// returns ErrNotFound.
func NewGeocoder(provider maps.Geocoder, cache *TieredCache[GeocodeResult], timeout time.Duration, m *metrics.Metrics) *Geocoder {
	return &Geocoder{
		provider: provider,
		cache:    cache,
		timeout:  timeout,
		metrics:  m,
	}
}

func (g *Geocoder) Resolve(ctx context.Context, address string) (*GeocodeResult, error) {
	if strings.TrimSpace(address) == "" {
		return nil, ErrEmptyAddress
	}

	if r, ok := g.cache.Get(ctx, address); ok {
		g.metrics.GeocodeLookup("cache")
		return &r, nil
	}

	if g.provider == nil {
		g.metrics.GeocodeLookup("not_found")
		return nil, ErrNotFound
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	match, err := g.provider.Geocode(callCtx, address)
	g.metrics.ProviderLatency("geocode", time.Since(start).Seconds())
	if err != nil {
		slog.WarnContext(ctx, "geocoding failed",
			slog.String("address", address),
			slog.String("error", err.Error()),
		)
		g.metrics.GeocodeLookup("not_found")
		return nil, ErrNotFound
	}

	result := GeocodeResult{
		Location:         match.Location,
		FormattedAddress: match.FormattedAddress,
		Precise:          isPrecise(match.Types),
	}
	if !result.Precise {
		slog.WarnContext(ctx, "low precision geocode match",
			slog.String("address", address),
			slog.Any("types", match.Types),
		)
	}

	g.cache.Set(ctx, address, result)
	g.metrics.GeocodeLookup("provider")
	return &result, nil
}

func isPrecise(types []string) bool {
	for _, t := range types {
		if preciseTypes[t] {
			return true
		}
	}
	return false
}
