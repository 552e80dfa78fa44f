package shipment

import (
	"database/sql/driver"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOnTheWay  Status = "ON_THE_WAY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Item struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// Items is stored as a jsonb array.
type Items []Item

func (i Items) Value() (driver.Value, error) {
	if i == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(i)
}

func (i *Items) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = nil
		return nil
	case []byte:
		return json.Unmarshal(v, i)
	case string:
		return json.Unmarshal([]byte(v), i)
	}
	return errors.New("shipment: unsupported items column type")
}

// Shipment is one aid delivery from a hub to a health post. The driver
// fields are a snapshot taken at dispatch.
type Shipment struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	ExternalRequestID string     `db:"external_request_id" json:"externalRequestId"`
	HealthPostID      uuid.UUID  `db:"health_post_id" json:"healthPostId"`
	HubID             uuid.UUID  `db:"hub_id" json:"hubId"`
	PatientSummary    string     `db:"patient_summary" json:"patientSummary"`
	Urgency           string     `db:"urgency" json:"urgency"`
	Status            Status     `db:"status" json:"status"`
	Items             Items      `db:"items" json:"items"`
	DriverID          *uuid.UUID `db:"driver_id" json:"driverId,omitempty"`
	DriverName        *string    `db:"driver_name" json:"driverName,omitempty"`
	DriverPhone       *string    `db:"driver_phone" json:"driverPhone,omitempty"`
	ETA               *string    `db:"eta" json:"eta,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}
