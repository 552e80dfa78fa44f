package shipment

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	domainerrors "posyandu-logistics/internal/errors"
)

func New(externalRequestID string, postID, hubID uuid.UUID, patientSummary, urgency string) *Shipment {
	if urgency == "" {
		urgency = "NORMAL"
	}
	now := time.Now()
	return &Shipment{
		ID:                uuid.New(),
		ExternalRequestID: externalRequestID,
		HealthPostID:      postID,
		HubID:             hubID,
		PatientSummary:    patientSummary,
		Urgency:           urgency,
		Status:            StatusPending,
		Items:             Items{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// CheckDispatchable rejects anything but a PENDING shipment owned by hubID.
func (s *Shipment) CheckDispatchable(hubID uuid.UUID) error {
	if s.HubID != hubID {
		return domainerrors.ShipmentNotOwned()
	}
	if s.Status != StatusPending {
		return domainerrors.ShipmentAlreadyProcessed(string(s.Status))
	}
	return nil
}

// Dispatch moves a PENDING shipment on the road with a driver snapshot.
func (s *Shipment) Dispatch(driverID uuid.UUID, driverName, driverPhone string, items Items, eta string) error {
	if s.Status != StatusPending {
		return domainerrors.ShipmentAlreadyProcessed(string(s.Status))
	}
	s.DriverID = &driverID
	s.DriverName = &driverName
	s.DriverPhone = &driverPhone
	s.Items = items
	s.ETA = &eta
	s.Status = StatusOnTheWay
	s.UpdatedAt = time.Now()
	return nil
}

// Deliver marks an ON_THE_WAY shipment delivered. Delivering twice is a
// no-op and reports false.
func (s *Shipment) Deliver() (bool, error) {
	switch s.Status {
	case StatusDelivered:
		return false, nil
	case StatusOnTheWay:
		s.Status = StatusDelivered
		s.UpdatedAt = time.Now()
		return true, nil
	}
	return false, domainerrors.NewInvalidTransition(string(s.Status), string(StatusDelivered))
}

// Cancel ends a PENDING or ON_THE_WAY shipment. It returns the prior status
// so the caller knows whether dispatch side effects must be reversed.
func (s *Shipment) Cancel() (Status, error) {
	prev := s.Status
	if prev.Terminal() {
		return prev, domainerrors.ShipmentAlreadyProcessed(string(prev))
	}
	s.Status = StatusCancelled
	s.UpdatedAt = time.Now()
	return prev, nil
}

// Merge folds duplicate SKUs together and orders lines by SKU, which is also
// the order inventory rows are locked in.
func Merge(items Items) (Items, error) {
	if len(items) == 0 {
		return nil, domainerrors.NewValidation("at least one item is required")
	}
	index := make(map[string]int, len(items))
	var out Items
	for _, it := range items {
		if it.SKU == "" {
			return nil, domainerrors.NewValidation("item sku is required")
		}
		if it.Qty <= 0 {
			return nil, domainerrors.NewValidation("item qty must be greater than zero for sku " + it.SKU)
		}
		if i, ok := index[it.SKU]; ok {
			out[i].Qty += it.Qty
			continue
		}
		index[it.SKU] = len(out)
		out = append(out, it)
	}
	slices.SortFunc(out, func(a, b Item) int { return strings.Compare(a.SKU, b.SKU) })
	return out, nil
}
