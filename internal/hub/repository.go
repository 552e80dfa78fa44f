package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"posyandu-logistics/internal/common"
)

const columns = `id, username, password_hash, name, address, lat, lng, created_at, updated_at`

const inventoryColumns = `hub_id, sku, name, quantity, unit, min_stock, updated_at`

// distanceExpr is the haversine distance in km from ($1, $2) to the row.
const distanceExpr = `(6371 * acos(LEAST(1.0, cos(radians($1)) * cos(radians(lat)) * cos(radians(lng) - radians($2)) + sin(radians($1)) * sin(radians(lat)))))`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, h *Hub) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Hub, error)
	GetByUsername(ctx context.Context, ext sqlx.ExtContext, username string) (*Hub, error)
	Update(ctx context.Context, ext sqlx.ExtContext, h *Hub) error
	Nearest(ctx context.Context, ext sqlx.ExtContext, loc common.Location, limit int) ([]Candidate, error)

	ListInventory(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID) ([]*InventoryItem, error)
	GetStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, skus []string) (map[string]*InventoryItem, error)
	LockItem(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string) (*InventoryItem, error)
	UpsertItem(ctx context.Context, ext sqlx.ExtContext, item *InventoryItem) error
	DecrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string, qty int) (int, bool, error)
	IncrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku, name string, qty int) (int, error)
	RecordMovement(ctx context.Context, ext sqlx.ExtContext, m *Movement) error
	ListMovements(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string, limit int) ([]*Movement, error)

	Stats(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, since time.Time) (*Stats, error)
}

type hubRepository struct{}

func NewRepository() Repository {
	return &hubRepository{}
}

// ErrUsernameTaken is returned by Create on a duplicate username.
var ErrUsernameTaken = errors.New("username already exists")

func (r *hubRepository) Create(ctx context.Context, ext sqlx.ExtContext, h *Hub) error {
	const query = `INSERT INTO hubs (id, username, password_hash, name, address, lat, lng, created_at, updated_at)
		VALUES (:id, :username, :password_hash, :name, :address, :lat, :lng, :created_at, :updated_at)`

	_, err := sqlx.NamedExecContext(ctx, ext, query, h)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrUsernameTaken
	}
	return err
}

func (r *hubRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Hub, error) {
	var h Hub
	query := fmt.Sprintf(`SELECT %s FROM hubs WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &h, query, id); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *hubRepository) GetByUsername(ctx context.Context, ext sqlx.ExtContext, username string) (*Hub, error) {
	var h Hub
	query := fmt.Sprintf(`SELECT %s FROM hubs WHERE username = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &h, query, username); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *hubRepository) Update(ctx context.Context, ext sqlx.ExtContext, h *Hub) error {
	const query = `UPDATE hubs SET name = :name, address = :address, lat = :lat, lng = :lng, updated_at = :updated_at WHERE id = :id`
	_, err := sqlx.NamedExecContext(ctx, ext, query, h)
	return err
}

func (r *hubRepository) Nearest(ctx context.Context, ext sqlx.ExtContext, loc common.Location, limit int) ([]Candidate, error) {
	query := fmt.Sprintf(`SELECT id, name, lat, lng, %s AS distance_km FROM hubs ORDER BY distance_km ASC, id ASC LIMIT $3`, distanceExpr)

	var out []Candidate
	if err := sqlx.SelectContext(ctx, ext, &out, query, loc.Lat, loc.Lng, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hubRepository) ListInventory(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID) ([]*InventoryItem, error) {
	var items []*InventoryItem
	query := fmt.Sprintf(`SELECT %s FROM hub_inventory WHERE hub_id = $1 ORDER BY sku`, inventoryColumns)
	if err := sqlx.SelectContext(ctx, ext, &items, query, hubID); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *hubRepository) GetStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, skus []string) (map[string]*InventoryItem, error) {
	var items []*InventoryItem
	query := fmt.Sprintf(`SELECT %s FROM hub_inventory WHERE hub_id = $1 AND sku = ANY($2)`, inventoryColumns)
	if err := sqlx.SelectContext(ctx, ext, &items, query, hubID, pq.Array(skus)); err != nil {
		return nil, err
	}

	out := make(map[string]*InventoryItem, len(items))
	for _, it := range items {
		out[it.SKU] = it
	}
	return out, nil
}

// LockItem reads one stock row FOR UPDATE; nil when the sku is unknown.
func (r *hubRepository) LockItem(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string) (*InventoryItem, error) {
	var it InventoryItem
	query := fmt.Sprintf(`SELECT %s FROM hub_inventory WHERE hub_id = $1 AND sku = $2 FOR UPDATE`, inventoryColumns)
	err := sqlx.GetContext(ctx, ext, &it, query, hubID, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *hubRepository) UpsertItem(ctx context.Context, ext sqlx.ExtContext, item *InventoryItem) error {
	const query = `INSERT INTO hub_inventory (hub_id, sku, name, quantity, unit, min_stock, updated_at)
		VALUES (:hub_id, :sku, :name, :quantity, :unit, :min_stock, :updated_at)
		ON CONFLICT (hub_id, sku) DO UPDATE SET
			name = EXCLUDED.name, quantity = EXCLUDED.quantity, unit = EXCLUDED.unit,
			min_stock = EXCLUDED.min_stock, updated_at = EXCLUDED.updated_at`
	_, err := sqlx.NamedExecContext(ctx, ext, query, item)
	return err
}

// DecrementStock subtracts qty only if enough stock remains. The bool is
// false when the guard did not match (unknown sku or not enough stock).
func (r *hubRepository) DecrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string, qty int) (int, bool, error) {
	const query = `UPDATE hub_inventory SET quantity = quantity - $3, updated_at = NOW()
		WHERE hub_id = $1 AND sku = $2 AND quantity >= $3
		RETURNING quantity`

	var after int
	err := sqlx.GetContext(ctx, ext, &after, query, hubID, sku, qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return after, true, nil
}

func (r *hubRepository) IncrementStock(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku, name string, qty int) (int, error) {
	const query = `INSERT INTO hub_inventory (hub_id, sku, name, quantity, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (hub_id, sku) DO UPDATE SET quantity = hub_inventory.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING quantity`

	var after int
	if err := sqlx.GetContext(ctx, ext, &after, query, hubID, sku, name, qty); err != nil {
		return 0, err
	}
	return after, nil
}

func (r *hubRepository) RecordMovement(ctx context.Context, ext sqlx.ExtContext, m *Movement) error {
	const query = `INSERT INTO inventory_movements (id, hub_id, sku, quantity_change, quantity_after, reason, shipment_id, created_at)
		VALUES (:id, :hub_id, :sku, :quantity_change, :quantity_after, :reason, :shipment_id, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, ext, query, m)
	return err
}

// ListMovements returns the newest ledger rows first; an empty sku means
// every sku.
func (r *hubRepository) ListMovements(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, sku string, limit int) ([]*Movement, error) {
	const query = `SELECT id, hub_id, sku, quantity_change, quantity_after, reason, shipment_id, created_at
		FROM inventory_movements WHERE hub_id = $1 AND ($2::text = '' OR sku = $2) ORDER BY created_at DESC LIMIT $3`

	var out []*Movement
	if err := sqlx.SelectContext(ctx, ext, &out, query, hubID, sku, limit); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats counts deliveries confirmed at or after since as delivered today.
func (r *hubRepository) Stats(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, since time.Time) (*Stats, error) {
	const query = `SELECT
		(SELECT COUNT(*) FROM shipments WHERE hub_id = $1 AND status IN ('PENDING', 'ON_THE_WAY')) AS active_shipments,
		(SELECT COUNT(*) FROM shipments WHERE hub_id = $1 AND status = 'PENDING') AS pending_requests,
		(SELECT COUNT(*) FROM shipments WHERE hub_id = $1 AND status = 'DELIVERED' AND updated_at >= $2) AS delivered_today,
		(SELECT COUNT(*) FROM drivers WHERE hub_id = $1) AS total_drivers,
		(SELECT COUNT(*) FROM drivers WHERE hub_id = $1 AND status = 'AVAILABLE') AS available_drivers,
		(SELECT COUNT(*) FROM hub_inventory WHERE hub_id = $1 AND quantity <= min_stock) AS low_stock_items`

	var st Stats
	if err := sqlx.GetContext(ctx, ext, &st, query, hubID, since); err != nil {
		return nil, err
	}
	return &st, nil
}
