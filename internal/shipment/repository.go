package shipment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const columns = `id, external_request_id, health_post_id, hub_id, patient_summary, urgency, status, items, driver_id, driver_name, driver_phone, eta, created_at, updated_at`

type Repository interface {
	// Create inserts s unless its external request id already exists and
	// reports whether a row was written.
	Create(ctx context.Context, ext sqlx.ExtContext, s *Shipment) (bool, error)
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Shipment, error)
	GetByExternalRequestID(ctx context.Context, ext sqlx.ExtContext, externalRequestID string) (*Shipment, error)
	ListByHub(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, status *Status) ([]*Shipment, error)
	MarkDispatched(ctx context.Context, ext sqlx.ExtContext, s *Shipment) (bool, error)
	UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to Status) (bool, error)
}

type shipmentRepository struct{}

func NewRepository() Repository {
	return &shipmentRepository{}
}

func (r *shipmentRepository) Create(ctx context.Context, ext sqlx.ExtContext, s *Shipment) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO shipments (%s)
		VALUES (:id, :external_request_id, :health_post_id, :hub_id, :patient_summary, :urgency, :status, :items,
			:driver_id, :driver_name, :driver_phone, :eta, :created_at, :updated_at)
		ON CONFLICT (external_request_id) DO NOTHING`, columns)
	return affected(sqlx.NamedExecContext(ctx, ext, query, s))
}

func (r *shipmentRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Shipment, error) {
	var s Shipment
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &s, query, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *shipmentRepository) GetByExternalRequestID(ctx context.Context, ext sqlx.ExtContext, externalRequestID string) (*Shipment, error) {
	var s Shipment
	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE external_request_id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &s, query, externalRequestID); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *shipmentRepository) ListByHub(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, status *Status) ([]*Shipment, error) {
	var out []*Shipment
	if status != nil {
		query := fmt.Sprintf(`SELECT %s FROM shipments WHERE hub_id = $1 AND status = $2 ORDER BY created_at DESC`, columns)
		if err := sqlx.SelectContext(ctx, ext, &out, query, hubID, *status); err != nil {
			return nil, err
		}
		return out, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM shipments WHERE hub_id = $1 ORDER BY created_at DESC`, columns)
	if err := sqlx.SelectContext(ctx, ext, &out, query, hubID); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDispatched persists the dispatch snapshot only while the row is still
// PENDING.
func (r *shipmentRepository) MarkDispatched(ctx context.Context, ext sqlx.ExtContext, s *Shipment) (bool, error) {
	const query = `UPDATE shipments SET status = :status, items = :items, driver_id = :driver_id,
			driver_name = :driver_name, driver_phone = :driver_phone, eta = :eta, updated_at = :updated_at
		WHERE id = :id AND status = 'PENDING'`
	return affected(sqlx.NamedExecContext(ctx, ext, query, s))
}

func (r *shipmentRepository) UpdateStatus(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID, from, to Status) (bool, error) {
	const query = `UPDATE shipments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	return affected(ext.ExecContext(ctx, query, id, from, to))
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
