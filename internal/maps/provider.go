// Package maps holds the clients for external routing and geocoding
// providers. Callers in internal/geo decide what to do when they fail.
package maps

import (
	"context"
	"errors"
	"time"

	"posyandu-logistics/internal/common"
)

var (
	ErrMissingAPIKey = errors.New("maps provider api key is not configured")
	ErrRequest       = errors.New("maps provider request failed")
	ErrNoRoute       = errors.New("maps provider returned no route")
	ErrNoResults     = errors.New("maps provider returned no results")
	ErrCircuitOpen   = errors.New("maps provider circuit is open")
)

// TravelTimeProvider returns the driving duration between two points.
type TravelTimeProvider interface {
	TravelTime(ctx context.Context, from, to common.Location) (time.Duration, error)
}

// Geocoder resolves a free-text address to its best match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*GeocodeMatch, error)
}

type GeocodeMatch struct {
	Location         common.Location
	FormattedAddress string
	Types            []string
}
