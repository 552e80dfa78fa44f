package hub

import (
	"time"

	"github.com/google/uuid"

	"posyandu-logistics/internal/common"
)

// Hub is a logistics warehouse operated by one account.
type Hub struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Address      string    `db:"address" json:"address"`
	Lat          float64   `db:"lat" json:"lat"`
	Lng          float64   `db:"lng" json:"lng"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func New(username, passwordHash, name, address string, loc common.Location) *Hub {
	now := time.Now()
	return &Hub{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Name:         name,
		Address:      address,
		Lat:          loc.Lat,
		Lng:          loc.Lng,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (h *Hub) Location() common.Location {
	return common.NewLocation(h.Lat, h.Lng)
}

// Relocate moves the hub and reports whether the coordinates changed.
func (h *Hub) Relocate(address string, loc common.Location) bool {
	moved := h.Lat != loc.Lat || h.Lng != loc.Lng
	h.Address = address
	h.Lat = loc.Lat
	h.Lng = loc.Lng
	h.UpdatedAt = time.Now()
	return moved
}

// Candidate is a hub returned by the geospatial pre-filter, nearest first.
type Candidate struct {
	ID         uuid.UUID `db:"id"`
	Name       string    `db:"name"`
	Lat        float64   `db:"lat"`
	Lng        float64   `db:"lng"`
	DistanceKM float64   `db:"distance_km"`
}

func (c Candidate) Location() common.Location {
	return common.NewLocation(c.Lat, c.Lng)
}

// InventoryItem is the stock of one sku at one hub. Quantity never drops
// below zero.
type InventoryItem struct {
	HubID     uuid.UUID `db:"hub_id" json:"hub_id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Unit      string    `db:"unit" json:"unit"`
	MinStock  int       `db:"min_stock" json:"min_stock"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (i InventoryItem) LowStock() bool {
	return i.Quantity <= i.MinStock
}

// Stats summarises a hub's open work, its drivers and its low stock.
// DriverAvailability is the rounded percentage of drivers that are available.
type Stats struct {
	ActiveShipments    int `db:"active_shipments" json:"active_shipments"`
	PendingRequests    int `db:"pending_requests" json:"pending_requests"`
	DeliveredToday     int `db:"delivered_today" json:"delivered_today"`
	TotalDrivers       int `db:"total_drivers" json:"total_drivers"`
	AvailableDrivers   int `db:"available_drivers" json:"available_drivers"`
	DriverAvailability int `db:"-" json:"driver_availability"`
	LowStockItems      int `db:"low_stock_items" json:"low_stock_items"`
}

type MovementReason string

const (
	ReasonDispatch      MovementReason = "dispatch"
	ReasonCancelRestore MovementReason = "cancel_restore"
	ReasonAdjustment    MovementReason = "manual_adjustment"
)

// Movement is one ledger line of a stock change.
type Movement struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	HubID          uuid.UUID      `db:"hub_id" json:"hub_id"`
	SKU            string         `db:"sku" json:"sku"`
	QuantityChange int            `db:"quantity_change" json:"quantity_change"`
	QuantityAfter  int            `db:"quantity_after" json:"quantity_after"`
	Reason         MovementReason `db:"reason" json:"reason"`
	ShipmentID     *uuid.UUID     `db:"shipment_id" json:"shipment_id,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

func NewMovement(hubID uuid.UUID, sku string, change, after int, reason MovementReason, shipmentID *uuid.UUID) *Movement {
	return &Movement{
		ID:             uuid.New(),
		HubID:          hubID,
		SKU:            sku,
		QuantityChange: change,
		QuantityAfter:  after,
		Reason:         reason,
		ShipmentID:     shipmentID,
		CreatedAt:      time.Now(),
	}
}
