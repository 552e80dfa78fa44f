package geo

import (
	"context"
	"errors"

	"posyandu-logistics/internal/common"
	domainerrors "posyandu-logistics/internal/errors"
)

type AddressResolver interface {
	Resolve(ctx context.Context, address string) (*GeocodeResult, error)
}

// Locator settles the coordinates of a registration: explicit coordinates
// win, otherwise the address is geocoded. There is no zero-coordinate
// fallback; an address that cannot be resolved rejects the registration.
type Locator struct {
	resolver       AddressResolver
	requirePrecise bool
}

func NewLocator(resolver AddressResolver, requirePrecise bool) *Locator {
	return &Locator{resolver: resolver, requirePrecise: requirePrecise}
}

// Locate returns the coordinates and whether they are street-level precise.
func (l *Locator) Locate(ctx context.Context, address string, explicit *common.Location) (common.Location, bool, error) {
	if explicit != nil {
		if err := common.ValidateLatLng(explicit.Lat, explicit.Lng); err != nil {
			return common.Location{}, false, domainerrors.NewValidation(err.Error())
		}
		return *explicit, true, nil
	}

	r, err := l.resolver.Resolve(ctx, address)
	switch {
	case errors.Is(err, ErrEmptyAddress):
		return common.Location{}, false, domainerrors.NewValidation("either an address or lat/lng is required")
	case err != nil:
		return common.Location{}, false, domainerrors.AddressNotFound(address)
	}

	if !r.Precise && l.requirePrecise {
		return common.Location{}, false, domainerrors.ImpreciseAddress(address)
	}
	return r.Location, r.Precise, nil
}
