package driver

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAvailable  Status = "AVAILABLE"
	StatusOnDelivery Status = "ON_DELIVERY"
	StatusOffDuty    Status = "OFF_DUTY"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusOnDelivery, StatusOffDuty:
		return true
	}
	return false
}

// Driver is a courier employed by a hub. CurrentShipmentID is set exactly
// when Status is ON_DELIVERY.
type Driver struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	HubID             uuid.UUID  `db:"hub_id" json:"hub_id"`
	Name              string     `db:"name" json:"name"`
	Phone             string     `db:"phone" json:"phone"`
	VehicleNumber     string     `db:"vehicle_number" json:"vehicle_number"`
	Status            Status     `db:"status" json:"status"`
	CurrentShipmentID *uuid.UUID `db:"current_shipment_id" json:"current_shipment_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}
