package driver

import (
	"time"

	"github.com/google/uuid"

	domainerrors "posyandu-logistics/internal/errors"
)

func New(hubID uuid.UUID, name, phone, vehicleNumber string) *Driver {
	now := time.Now()
	return &Driver{
		ID:            uuid.New(),
		HubID:         hubID,
		Name:          name,
		Phone:         phone,
		VehicleNumber: vehicleNumber,
		Status:        StatusAvailable,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CheckAssignable reports why the driver cannot take a shipment, if at all.
func (d *Driver) CheckAssignable() error {
	switch d.Status {
	case StatusOnDelivery:
		return domainerrors.DriverBusy(d.Name)
	case StatusOffDuty:
		return domainerrors.DriverOffDuty(d.Name)
	}
	return nil
}

// SetManualStatus applies an operator-initiated status change. ON_DELIVERY
// is only reachable through dispatch. Leaving ON_DELIVERY for AVAILABLE
// clears the shipment lock and is reported as forced.
func (d *Driver) SetManualStatus(to Status) (forced bool, err error) {
	if !to.Valid() {
		return false, domainerrors.NewValidation("status must be AVAILABLE or OFF_DUTY")
	}
	if to == StatusOnDelivery {
		return false, domainerrors.NewValidation("ON_DELIVERY can only be set by dispatching a shipment")
	}
	if d.Status == to {
		return false, nil
	}
	if d.Status == StatusOnDelivery && to == StatusOffDuty {
		return false, domainerrors.NewInvalidTransition(string(d.Status), string(to))
	}

	forced = d.Status == StatusOnDelivery
	d.Status = to
	d.CurrentShipmentID = nil
	d.UpdatedAt = time.Now()
	return forced, nil
}
