package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"posyandu-logistics/internal/driver"
	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/events"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/metrics"
	"posyandu-logistics/internal/shipment"
)

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error
}

type ShipmentStore interface {
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*shipment.Shipment, error)
	GetByExternalRequestID(ctx context.Context, ext sqlx.ExtContext, externalRequestID string) (*shipment.Shipment, error)
	MarkDispatched(ctx context.Context, ext sqlx.ExtContext, s *shipment.Shipment) (bool, error)
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to shipment.Status) (bool, error)
}

type DriverStore interface {
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*driver.Driver, error)
	Claim(ctx context.Context, ext sqlx.ExtContext, driverID, hubID, shipmentID uuid.UUID) (bool, error)
	ReleaseByShipment(ctx context.Context, ext sqlx.ExtContext, shipmentID uuid.UUID) (bool, error)
}

type InventoryStore interface {
	GetStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, skus []string) (map[string]*hub.InventoryItem, error)
	DecrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string, qty int) (int, bool, error)
	IncrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku, name string, qty int) (int, error)
	RecordMovement(ctx context.Context, ext sqlx.ExtContext, m *hub.Movement) error
}

type AssignInput struct {
	ShipmentID uuid.UUID
	HubID      uuid.UUID
	DriverID   uuid.UUID
	Items      shipment.Items
	ETA        string
}

// Coordinator owns every shipment transition that touches stock or
// drivers.
type Coordinator interface {
	Assign(ctx context.Context, in AssignInput) (*shipment.Shipment, error)
	Complete(ctx context.Context, externalRequestID string) (*shipment.Shipment, error)
	Cancel(ctx context.Context, externalRequestID string) (*shipment.Shipment, error)
}

type coordinator struct {
	db        sqlx.ExtContext
	tx        TxRunner
	shipments ShipmentStore
	drivers   DriverStore
	inventory InventoryStore
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func NewCoordinator(
	db sqlx.ExtContext,
	tx TxRunner,
	shipments ShipmentStore,
	drivers DriverStore,
	inventory InventoryStore,
	publisher events.Publisher,
	m *metrics.Metrics,
) Coordinator {
	return &coordinator{
		db:        db,
		tx:        tx,
		shipments: shipments,
		drivers:   drivers,
		inventory: inventory,
		publisher: publisher,
		metrics:   m,
	}
}

// Assign dispatches a PENDING shipment: stock is deducted line by line, the
// driver is claimed and the shipment snapshot is written, all in one
// transaction. Every write is conditional, so a lost race rolls the whole
// dispatch back instead of leaving part of it applied.
func (c *coordinator) Assign(ctx context.Context, in AssignInput) (*shipment.Shipment, error) {
	sh, err := c.loadShipment(ctx, c.db, in.ShipmentID)
	if err != nil {
		return nil, err
	}
	if err := sh.CheckDispatchable(in.HubID); err != nil {
		c.metrics.DispatchAttempt("rejected")
		return nil, err
	}

	drv, err := c.drivers.GetByID(ctx, c.db, in.DriverID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && drv.HubID != in.HubID) {
		return nil, domainerrors.DriverNotFound(in.DriverID.String())
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load driver", err)
	}
	if err := drv.CheckAssignable(); err != nil {
		c.metrics.DispatchAttempt("driver_unavailable")
		return nil, err
	}

	items, err := shipment.Merge(in.Items)
	if err != nil {
		return nil, err
	}
	if err := c.precheckStock(ctx, in.HubID, items); err != nil {
		c.metrics.DispatchAttempt("insufficient_stock")
		return nil, err
	}

	if err := sh.Dispatch(drv.ID, drv.Name, drv.Phone, items, in.ETA); err != nil {
		return nil, err
	}

	err = c.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		for _, line := range items {
			after, ok, err := c.inventory.DecrementStock(ctx, ext, in.HubID, line.SKU, line.Qty)
			if err != nil {
				return err
			}
			if !ok {
				return domainerrors.StockChanged(line.SKU)
			}
			shipmentID := sh.ID
			mv := hub.NewMovement(in.HubID, line.SKU, -line.Qty, after, hub.ReasonDispatch, &shipmentID)
			if err := c.inventory.RecordMovement(ctx, ext, mv); err != nil {
				return err
			}
		}

		claimed, err := c.drivers.Claim(ctx, ext, drv.ID, in.HubID, sh.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return domainerrors.DriverBusy(drv.Name)
		}

		ok, err := c.shipments.MarkDispatched(ctx, ext, sh)
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.ShipmentChanged(sh.ID.String())
		}
		return nil
	})
	if err != nil {
		c.metrics.DispatchAttempt(outcomeOf(err))
		return nil, asDomainError(err, "failed to dispatch shipment")
	}

	c.metrics.DispatchAttempt("success")
	slog.InfoContext(ctx, "shipment dispatched",
		slog.String("shipment_id", sh.ID.String()),
		slog.String("hub_id", in.HubID.String()),
		slog.String("driver_id", drv.ID.String()),
		slog.Int("lines", len(items)),
	)
	events.PublishLogged(ctx, c.publisher, eventFor(events.ShipmentDispatched, sh))
	return sh, nil
}

// Complete marks the shipment delivered and frees whichever driver holds it.
// Confirming an already delivered shipment returns it unchanged.
func (c *coordinator) Complete(ctx context.Context, externalRequestID string) (*shipment.Shipment, error) {
	sh, err := c.loadByExternal(ctx, externalRequestID)
	if err != nil {
		return nil, err
	}

	changed, err := sh.Deliver()
	if err != nil {
		return nil, err
	}
	if !changed {
		return sh, nil
	}

	var released bool
	err = c.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		ok, err := c.shipments.UpdateStatus(ctx, ext, sh.ID, shipment.StatusOnTheWay, shipment.StatusDelivered)
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.ShipmentChanged(sh.ID.String())
		}
		released, err = c.drivers.ReleaseByShipment(ctx, ext, sh.ID)
		return err
	})
	if domainerrors.HasCode(err, domainerrors.ErrConcurrencyConflict) {
		// A concurrent confirmation won; report its result.
		if again, lerr := c.loadByExternal(ctx, externalRequestID); lerr == nil && again.Status == shipment.StatusDelivered {
			return again, nil
		}
	}
	if err != nil {
		return nil, asDomainError(err, "failed to complete shipment")
	}

	slog.InfoContext(ctx, "shipment delivered",
		slog.String("shipment_id", sh.ID.String()),
		slog.Bool("driver_released", released),
	)
	events.PublishLogged(ctx, c.publisher, eventFor(events.ShipmentDelivered, sh))
	return sh, nil
}

// Cancel ends a PENDING or ON_THE_WAY shipment. A dispatched shipment gets
// its stock put back and its driver released in the same transaction that
// flips the status.
func (c *coordinator) Cancel(ctx context.Context, externalRequestID string) (*shipment.Shipment, error) {
	sh, err := c.loadByExternal(ctx, externalRequestID)
	if err != nil {
		return nil, err
	}

	prev, err := sh.Cancel()
	if err != nil {
		return nil, err
	}

	err = c.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		ok, err := c.shipments.UpdateStatus(ctx, ext, sh.ID, prev, shipment.StatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.ShipmentChanged(sh.ID.String())
		}
		if prev != shipment.StatusOnTheWay {
			return nil
		}
		return c.compensate(ctx, ext, sh)
	})
	if err != nil {
		return nil, asDomainError(err, "failed to cancel shipment")
	}

	slog.InfoContext(ctx, "shipment cancelled",
		slog.String("shipment_id", sh.ID.String()),
		slog.String("previous_status", string(prev)),
	)
	events.PublishLogged(ctx, c.publisher, eventFor(events.ShipmentCancelled, sh))
	return sh, nil
}

// compensate reverses the side effects of a dispatch.
func (c *coordinator) compensate(ctx context.Context, ext sqlx.ExtContext, sh *shipment.Shipment) error {
	shipmentID := sh.ID
	for _, line := range sh.Items {
		after, err := c.inventory.IncrementStock(ctx, ext, sh.HubID, line.SKU, line.SKU, line.Qty)
		if err != nil {
			return err
		}
		mv := hub.NewMovement(sh.HubID, line.SKU, line.Qty, after, hub.ReasonCancelRestore, &shipmentID)
		if err := c.inventory.RecordMovement(ctx, ext, mv); err != nil {
			return err
		}
	}

	released, err := c.drivers.ReleaseByShipment(ctx, ext, sh.ID)
	if err != nil {
		return err
	}
	if !released {
		slog.WarnContext(ctx, "no driver held the cancelled shipment", slog.String("shipment_id", sh.ID.String()))
	}
	return nil
}

func (c *coordinator) precheckStock(ctx context.Context, hubID uuid.UUID, items shipment.Items) error {
	skus := make([]string, len(items))
	for i, it := range items {
		skus[i] = it.SKU
	}
	stock, err := c.inventory.GetStock(ctx, c.db, hubID, skus)
	if err != nil {
		return domainerrors.NewInternal("failed to read stock", err)
	}
	for _, it := range items {
		have, ok := stock[it.SKU]
		if !ok {
			return domainerrors.SKUNotStocked(it.SKU)
		}
		if have.Quantity < it.Qty {
			return domainerrors.InsufficientStock(it.SKU)
		}
	}
	return nil
}

func (c *coordinator) loadShipment(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*shipment.Shipment, error) {
	sh, err := c.shipments.GetByID(ctx, ext, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ShipmentNotFound(id.String())
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load shipment", err)
	}
	return sh, nil
}

func (c *coordinator) loadByExternal(ctx context.Context, externalRequestID string) (*shipment.Shipment, error) {
	sh, err := c.shipments.GetByExternalRequestID(ctx, c.db, externalRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ShipmentNotFound(externalRequestID)
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load shipment", err)
	}
	return sh, nil
}

func asDomainError(err error, msg string) error {
	var de *domainerrors.DomainError
	if errors.As(err, &de) {
		return de
	}
	return domainerrors.NewInternal(msg, err)
}

func outcomeOf(err error) string {
	var de *domainerrors.DomainError
	if !errors.As(err, &de) {
		return "error"
	}
	switch de.Code {
	case domainerrors.ErrConcurrencyConflict:
		return "race_lost"
	case domainerrors.ErrConflict:
		return "driver_unavailable"
	}
	return "rejected"
}

func eventFor(kind string, sh *shipment.Shipment) events.ShipmentEvent {
	e := events.ShipmentEvent{
		Type:              kind,
		ShipmentID:        sh.ID,
		ExternalRequestID: sh.ExternalRequestID,
		HubID:             sh.HubID,
		Status:            string(sh.Status),
		OccurredAt:        sh.UpdatedAt.UTC(),
	}
	if sh.DriverName != nil {
		e.DriverName = *sh.DriverName
	}
	return e
}
