package driver

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, hub_id, name, phone, vehicle_number, status, current_shipment_id, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, ext sqlx.ExtContext, d *Driver) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Driver, error)
	ListByHub(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, status *Status) ([]*Driver, error)
	// UpdateStatusCAS writes d's status and lock only if the stored status is
	// still expected.
	UpdateStatusCAS(ctx context.Context, ext sqlx.ExtContext, d *Driver, expected Status) (bool, error)
	Claim(ctx context.Context, ext sqlx.ExtContext, driverID, hubID, shipmentID uuid.UUID) (bool, error)
	ReleaseByShipment(ctx context.Context, ext sqlx.ExtContext, shipmentID uuid.UUID) (bool, error)
}

type driverRepository struct{}

func NewRepository() Repository {
	return &driverRepository{}
}

func (r *driverRepository) Create(ctx context.Context, ext sqlx.ExtContext, d *Driver) error {
	query := fmt.Sprintf(`INSERT INTO drivers (%s)
		VALUES (:id, :hub_id, :name, :phone, :vehicle_number, :status, :current_shipment_id, :created_at, :updated_at)`, columns)
	_, err := sqlx.NamedExecContext(ctx, ext, query, d)
	return err
}

func (r *driverRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Driver, error) {
	var d Driver
	query := fmt.Sprintf(`SELECT %s FROM drivers WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &d, query, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *driverRepository) ListByHub(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, status *Status) ([]*Driver, error) {
	var drivers []*Driver
	if status != nil {
		query := fmt.Sprintf(`SELECT %s FROM drivers WHERE hub_id = $1 AND status = $2 ORDER BY name`, columns)
		if err := sqlx.SelectContext(ctx, ext, &drivers, query, hubID, *status); err != nil {
			return nil, err
		}
		return drivers, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM drivers WHERE hub_id = $1 ORDER BY name`, columns)
	if err := sqlx.SelectContext(ctx, ext, &drivers, query, hubID); err != nil {
		return nil, err
	}
	return drivers, nil
}

func (r *driverRepository) UpdateStatusCAS(ctx context.Context, ext sqlx.ExtContext, d *Driver, expected Status) (bool, error) {
	const query = `UPDATE drivers SET status = $2, current_shipment_id = $3, updated_at = $4
		WHERE id = $1 AND status = $5`
	return affected(ext.ExecContext(ctx, query, d.ID, d.Status, d.CurrentShipmentID, d.UpdatedAt, expected))
}

// Claim locks an AVAILABLE driver of the hub to a shipment.
func (r *driverRepository) Claim(ctx context.Context, ext sqlx.ExtContext, driverID, hubID, shipmentID uuid.UUID) (bool, error) {
	const query = `UPDATE drivers SET status = 'ON_DELIVERY', current_shipment_id = $2, updated_at = NOW()
		WHERE id = $1 AND hub_id = $3 AND status = 'AVAILABLE'`
	return affected(ext.ExecContext(ctx, query, driverID, shipmentID, hubID))
}

// ReleaseByShipment frees whichever driver holds the shipment lock. No
// holder is not an error.
func (r *driverRepository) ReleaseByShipment(ctx context.Context, ext sqlx.ExtContext, shipmentID uuid.UUID) (bool, error) {
	const query = `UPDATE drivers SET status = 'AVAILABLE', current_shipment_id = NULL, updated_at = NOW()
		WHERE current_shipment_id = $1`
	return affected(ext.ExecContext(ctx, query, shipmentID))
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}
