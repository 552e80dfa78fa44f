package dispatch

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posyandu-logistics/internal/driver"
	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/events"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/shipment"
)

// world is an in-memory database. Transactions are serialised and rolled
// back by restoring a snapshot, which is enough to observe all-or-nothing
// behaviour and conditional-write races.
type world struct {
	mu   sync.Mutex
	txMu sync.Mutex

	shipments map[uuid.UUID]shipment.Shipment
	drivers   map[uuid.UUID]driver.Driver
	stock     map[string]hub.InventoryItem
	movements []hub.Movement

	beforeTx func()
}

func newWorld() *world {
	return &world{
		shipments: map[uuid.UUID]shipment.Shipment{},
		drivers:   map[uuid.UUID]driver.Driver{},
		stock:     map[string]hub.InventoryItem{},
	}
}

func stockKey(hubID uuid.UUID, sku string) string { return hubID.String() + "/" + sku }

type snapshot struct {
	shipments map[uuid.UUID]shipment.Shipment
	drivers   map[uuid.UUID]driver.Driver
	stock     map[string]hub.InventoryItem
	movements []hub.Movement
}

func (w *world) snapshot() snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := snapshot{
		shipments: make(map[uuid.UUID]shipment.Shipment, len(w.shipments)),
		drivers:   make(map[uuid.UUID]driver.Driver, len(w.drivers)),
		stock:     make(map[string]hub.InventoryItem, len(w.stock)),
		movements: append([]hub.Movement(nil), w.movements...),
	}
	for k, v := range w.shipments {
		s.shipments[k] = v
	}
	for k, v := range w.drivers {
		s.drivers[k] = v
	}
	for k, v := range w.stock {
		s.stock[k] = v
	}
	return s
}

func (w *world) restore(s snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shipments, w.drivers, w.stock, w.movements = s.shipments, s.drivers, s.stock, s.movements
}

func (w *world) RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error {
	w.txMu.Lock()
	defer w.txMu.Unlock()
	if w.beforeTx != nil {
		w.beforeTx()
	}
	snap := w.snapshot()
	if err := fn(nil); err != nil {
		w.restore(snap)
		return err
	}
	return nil
}

func (w *world) quantity(hubID uuid.UUID, sku string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stock[stockKey(hubID, sku)].Quantity
}

func (w *world) driver(id uuid.UUID) driver.Driver {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drivers[id]
}

func (w *world) shipment(id uuid.UUID) shipment.Shipment {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shipments[id]
}

type shipmentFake struct{ w *world }

func (f shipmentFake) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*shipment.Shipment, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	s, ok := f.w.shipments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f shipmentFake) GetByExternalRequestID(ctx context.Context, ext sqlx.ExtContext, externalRequestID string) (*shipment.Shipment, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, s := range f.w.shipments {
		if s.ExternalRequestID == externalRequestID {
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f shipmentFake) MarkDispatched(ctx context.Context, ext sqlx.ExtContext, s *shipment.Shipment) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if f.w.shipments[s.ID].Status != shipment.StatusPending {
		return false, nil
	}
	f.w.shipments[s.ID] = *s
	return true, nil
}

func (f shipmentFake) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to shipment.Status) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	s, ok := f.w.shipments[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	f.w.shipments[id] = s
	return true, nil
}

type driverFake struct{ w *world }

func (f driverFake) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*driver.Driver, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	d, ok := f.w.drivers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (f driverFake) Claim(ctx context.Context, ext sqlx.ExtContext, driverID, hubID, shipmentID uuid.UUID) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	d, ok := f.w.drivers[driverID]
	if !ok || d.HubID != hubID || d.Status != driver.StatusAvailable {
		return false, nil
	}
	d.Status = driver.StatusOnDelivery
	d.CurrentShipmentID = &shipmentID
	f.w.drivers[driverID] = d
	return true, nil
}

func (f driverFake) ReleaseByShipment(ctx context.Context, ext sqlx.ExtContext, shipmentID uuid.UUID) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for id, d := range f.w.drivers {
		if d.CurrentShipmentID != nil && *d.CurrentShipmentID == shipmentID {
			d.Status = driver.StatusAvailable
			d.CurrentShipmentID = nil
			f.w.drivers[id] = d
			return true, nil
		}
	}
	return false, nil
}

type inventoryFake struct{ w *world }

func (f inventoryFake) GetStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, skus []string) (map[string]*hub.InventoryItem, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	out := map[string]*hub.InventoryItem{}
	for _, sku := range skus {
		if it, ok := f.w.stock[stockKey(hubID, sku)]; ok {
			out[sku] = &it
		}
	}
	return out, nil
}

func (f inventoryFake) DecrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string, qty int) (int, bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	it, ok := f.w.stock[stockKey(hubID, sku)]
	if !ok || it.Quantity < qty {
		return 0, false, nil
	}
	it.Quantity -= qty
	f.w.stock[stockKey(hubID, sku)] = it
	return it.Quantity, true, nil
}

func (f inventoryFake) IncrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku, name string, qty int) (int, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	it, ok := f.w.stock[stockKey(hubID, sku)]
	if !ok {
		it = hub.InventoryItem{HubID: hubID, SKU: sku, Name: name}
	}
	it.Quantity += qty
	f.w.stock[stockKey(hubID, sku)] = it
	return it.Quantity, nil
}

func (f inventoryFake) RecordMovement(ctx context.Context, ext sqlx.ExtContext, m *hub.Movement) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.movements = append(f.w.movements, *m)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ShipmentEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.ShipmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	w     *world
	pub   *recordingPublisher
	coord Coordinator
	hubID uuid.UUID
}

func newFixture() *fixture {
	w := newWorld()
	pub := &recordingPublisher{}
	return &fixture{
		w:     w,
		pub:   pub,
		coord: NewCoordinator(nil, w, shipmentFake{w}, driverFake{w}, inventoryFake{w}, pub, nil),
		hubID: uuid.New(),
	}
}

func (f *fixture) addStock(sku string, qty int) {
	f.w.stock[stockKey(f.hubID, sku)] = hub.InventoryItem{HubID: f.hubID, SKU: sku, Name: sku, Quantity: qty}
}

func (f *fixture) addDriver(name string) uuid.UUID {
	d := driver.New(f.hubID, name, "0812", "")
	f.w.drivers[d.ID] = *d
	return d.ID
}

func (f *fixture) addShipment(ref string) uuid.UUID {
	s := shipment.New(ref, uuid.New(), f.hubID, "", "")
	f.w.shipments[s.ID] = *s
	return s.ID
}

func (f *fixture) assign(shipmentID, driverID uuid.UUID, items ...shipment.Item) (*shipment.Shipment, error) {
	return f.coord.Assign(context.Background(), AssignInput{
		ShipmentID: shipmentID,
		HubID:      f.hubID,
		DriverID:   driverID,
		Items:      items,
		ETA:        "45 menit",
	})
}

func TestAssign_DispatchesShipment(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 10)
	f.addStock("BISCUIT-01", 5)
	drv := f.addDriver("Budi")
	sid := f.addShipment("REQ-1")

	sh, err := f.assign(sid, drv,
		shipment.Item{SKU: "MILK-001", Qty: 2},
		shipment.Item{SKU: "BISCUIT-01", Qty: 1},
		shipment.Item{SKU: "MILK-001", Qty: 1},
	)
	require.NoError(t, err)

	assert.Equal(t, shipment.StatusOnTheWay, sh.Status)
	assert.Equal(t, "Budi", *sh.DriverName)
	assert.Equal(t, "45 menit", *sh.ETA)
	assert.Equal(t, shipment.Items{{SKU: "BISCUIT-01", Qty: 1}, {SKU: "MILK-001", Qty: 3}}, sh.Items)

	assert.Equal(t, 7, f.w.quantity(f.hubID, "MILK-001"))
	assert.Equal(t, 4, f.w.quantity(f.hubID, "BISCUIT-01"))

	d := f.w.driver(drv)
	assert.Equal(t, driver.StatusOnDelivery, d.Status)
	require.NotNil(t, d.CurrentShipmentID)
	assert.Equal(t, sid, *d.CurrentShipmentID)

	require.Len(t, f.w.movements, 2)
	assert.Equal(t, hub.ReasonDispatch, f.w.movements[0].Reason)
	assert.Equal(t, -1, f.w.movements[0].QuantityChange)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.ShipmentDispatched, f.pub.events[0].Type)
}

func TestAssign_StockRejectionNamesSKU(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 1)
	drv := f.addDriver("Budi")
	sid := f.addShipment("REQ-1")

	_, err := f.assign(sid, drv, shipment.Item{SKU: "MILK-001", Qty: 2})
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict))
	assert.Contains(t, err.Error(), "MILK-001")

	_, err = f.assign(sid, drv, shipment.Item{SKU: "VITAMIN-A", Qty: 1})
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict))
	assert.Contains(t, err.Error(), "VITAMIN-A")

	assert.Equal(t, shipment.StatusPending, f.w.shipment(sid).Status)
	assert.Equal(t, driver.StatusAvailable, f.w.driver(drv).Status)
}

func TestAssign_RaceOnSecondLineRollsBackEverything(t *testing.T) {
	f := newFixture()
	f.addStock("A-SKU", 10)
	f.addStock("B-SKU", 10)
	drv := f.addDriver("Budi")
	sid := f.addShipment("REQ-1")

	// Another dispatch drains B-SKU after the pre-check but before our
	// transaction starts.
	f.w.beforeTx = func() {
		f.w.mu.Lock()
		it := f.w.stock[stockKey(f.hubID, "B-SKU")]
		it.Quantity = 1
		f.w.stock[stockKey(f.hubID, "B-SKU")] = it
		f.w.mu.Unlock()
	}

	_, err := f.assign(sid, drv, shipment.Item{SKU: "A-SKU", Qty: 4}, shipment.Item{SKU: "B-SKU", Qty: 4})
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConcurrencyConflict))
	assert.Contains(t, err.Error(), "B-SKU")

	assert.Equal(t, 10, f.w.quantity(f.hubID, "A-SKU"), "first line must not stay deducted")
	assert.Equal(t, driver.StatusAvailable, f.w.driver(drv).Status)
	assert.Equal(t, shipment.StatusPending, f.w.shipment(sid).Status)
	assert.Empty(t, f.w.movements)
	assert.Empty(t, f.pub.events)
}

func TestAssign_ConcurrentDispatchesNeverOversell(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 10)
	drivers := []uuid.UUID{f.addDriver("Budi"), f.addDriver("Siti")}
	shipments := []uuid.UUID{f.addShipment("REQ-1"), f.addShipment("REQ-2")}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.assign(shipments[i], drivers[i], shipment.Item{SKU: "MILK-001", Qty: 6})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			domainerrors.HasCode(err, domainerrors.ErrConflict) || domainerrors.HasCode(err, domainerrors.ErrConcurrencyConflict),
			err.Error())
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 4, f.w.quantity(f.hubID, "MILK-001"))
}

func TestAssign_ConcurrentDispatchesNeverDoubleBookDriver(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 100)
	drv := f.addDriver("Budi")
	shipments := []uuid.UUID{f.addShipment("REQ-1"), f.addShipment("REQ-2")}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.assign(shipments[i], drv, shipment.Item{SKU: "MILK-001", Qty: 1})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict), err.Error())
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 99, f.w.quantity(f.hubID, "MILK-001"), "loser's deduction must be rolled back")
}

func TestAssign_BusyDriverThenReleasedByDelivery(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 10)
	drv := f.addDriver("Budi")
	a := f.addShipment("REQ-A")
	b := f.addShipment("REQ-B")

	_, err := f.assign(a, drv, shipment.Item{SKU: "MILK-001", Qty: 1})
	require.NoError(t, err)

	_, err = f.assign(b, drv, shipment.Item{SKU: "MILK-001", Qty: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver Budi is currently ON_DELIVERY")

	_, err = f.coord.Complete(context.Background(), "REQ-A")
	require.NoError(t, err)
	assert.Equal(t, driver.StatusAvailable, f.w.driver(drv).Status)

	_, err = f.assign(b, drv, shipment.Item{SKU: "MILK-001", Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, 8, f.w.quantity(f.hubID, "MILK-001"))
}

func TestAssign_Rejections(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 10)
	drv := f.addDriver("Budi")

	t.Run("unknown shipment", func(t *testing.T) {
		_, err := f.assign(uuid.New(), drv, shipment.Item{SKU: "MILK-001", Qty: 1})
		assert.True(t, domainerrors.HasCode(err, domainerrors.ErrNotFound))
	})

	t.Run("other hub's shipment", func(t *testing.T) {
		s := shipment.New("REQ-X", uuid.New(), uuid.New(), "", "")
		f.w.shipments[s.ID] = *s
		_, err := f.assign(s.ID, drv, shipment.Item{SKU: "MILK-001", Qty: 1})
		assert.True(t, domainerrors.HasCode(err, domainerrors.ErrForbidden))
	})

	t.Run("other hub's driver", func(t *testing.T) {
		other := driver.New(uuid.New(), "Joko", "0813", "")
		f.w.drivers[other.ID] = *other
		_, err := f.assign(f.addShipment("REQ-Y"), other.ID, shipment.Item{SKU: "MILK-001", Qty: 1})
		assert.True(t, domainerrors.HasCode(err, domainerrors.ErrNotFound))
	})

	t.Run("off duty driver", func(t *testing.T) {
		id := f.addDriver("Rina")
		d := f.w.drivers[id]
		d.Status = driver.StatusOffDuty
		f.w.drivers[id] = d
		_, err := f.assign(f.addShipment("REQ-Z"), id, shipment.Item{SKU: "MILK-001", Qty: 1})
		assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict))
	})

	t.Run("terminal shipments", func(t *testing.T) {
		for _, st := range []shipment.Status{shipment.StatusDelivered, shipment.StatusCancelled} {
			sid := f.addShipment("REQ-" + string(st))
			s := f.w.shipments[sid]
			s.Status = st
			f.w.shipments[sid] = s

			_, err := f.assign(sid, drv, shipment.Item{SKU: "MILK-001", Qty: 1})
			assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict), string(st))
		}
	})

	assert.Equal(t, 10, f.w.quantity(f.hubID, "MILK-001"))
}

func TestComplete_IsIdempotent(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 10)
	drv := f.addDriver("Budi")
	sid := f.addShipment("REQ-1")

	_, err := f.coord.Complete(context.Background(), "REQ-1")
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrInvalidTransition), "pending shipment cannot be delivered")

	_, err = f.assign(sid, drv, shipment.Item{SKU: "MILK-001", Qty: 1})
	require.NoError(t, err)

	for range 2 {
		sh, err := f.coord.Complete(context.Background(), "REQ-1")
		require.NoError(t, err)
		assert.Equal(t, shipment.StatusDelivered, sh.Status)
	}
	assert.Len(t, f.pub.events, 2, "dispatched + one delivered")

	_, err = f.coord.Complete(context.Background(), "REQ-unknown")
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrNotFound))
}

func TestCancel_DispatchedShipmentIsCompensated(t *testing.T) {
	f := newFixture()
	f.addStock("MILK-001", 10)
	f.addStock("BISCUIT-01", 5)
	drv := f.addDriver("Budi")
	sid := f.addShipment("REQ-1")

	_, err := f.assign(sid, drv, shipment.Item{SKU: "MILK-001", Qty: 6}, shipment.Item{SKU: "BISCUIT-01", Qty: 2})
	require.NoError(t, err)

	sh, err := f.coord.Cancel(context.Background(), "REQ-1")
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusCancelled, sh.Status)

	assert.Equal(t, 10, f.w.quantity(f.hubID, "MILK-001"))
	assert.Equal(t, 5, f.w.quantity(f.hubID, "BISCUIT-01"))
	d := f.w.driver(drv)
	assert.Equal(t, driver.StatusAvailable, d.Status)
	assert.Nil(t, d.CurrentShipmentID)

	restores := 0
	for _, m := range f.w.movements {
		if m.Reason == hub.ReasonCancelRestore {
			restores++
		}
	}
	assert.Equal(t, 2, restores)
}

func TestCancel_PendingAndTerminal(t *testing.T) {
	f := newFixture()
	f.addShipment("REQ-1")

	sh, err := f.coord.Cancel(context.Background(), "REQ-1")
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusCancelled, sh.Status)
	assert.Empty(t, f.w.movements)

	_, err = f.coord.Cancel(context.Background(), "REQ-1")
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict))

	sid := f.addShipment("REQ-2")
	s := f.w.shipments[sid]
	s.Status = shipment.StatusDelivered
	f.w.shipments[sid] = s
	_, err = f.coord.Cancel(context.Background(), "REQ-2")
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConflict))
}
