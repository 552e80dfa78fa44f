package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"posyandu-logistics/internal/common"
)

const columns = `id, external_id, name, address, lat, lng, location_precise, assigned_hub_id, last_synced_at, created_at, updated_at`

type Repository interface {
	// Upsert inserts or refreshes the post keyed on ExternalID and fills
	// p with the stored row.
	Upsert(ctx context.Context, ext sqlx.ExtContext, p *HealthPost) error
	GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*HealthPost, error)
	GetByExternalID(ctx context.Context, ext sqlx.ExtContext, externalID string) (*HealthPost, error)
	SetAssignedHub(ctx context.Context, ext sqlx.ExtContext, postID, hubID uuid.UUID) (bool, error)
	ListByHub(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID) ([]*HealthPost, error)
	ListIDs(ctx context.Context, ext sqlx.ExtContext) ([]uuid.UUID, error)
	ListIDsWithin(ctx context.Context, ext sqlx.ExtContext, center common.Location, radiusKM float64) ([]uuid.UUID, error)
}

type postRepository struct{}

func NewRepository() Repository {
	return &postRepository{}
}

func (r *postRepository) Upsert(ctx context.Context, ext sqlx.ExtContext, p *HealthPost) error {
	const named = `INSERT INTO health_posts (id, external_id, name, address, lat, lng, location_precise, last_synced_at, created_at, updated_at)
		VALUES (:id, :external_id, :name, :address, :lat, :lng, :location_precise, :last_synced_at, :created_at, :updated_at)
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			location_precise = EXCLUDED.location_precise,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + columns

	query, args, err := ext.BindNamed(named, p)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, ext, p, query, args...)
}

func (r *postRepository) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*HealthPost, error) {
	var p HealthPost
	query := fmt.Sprintf(`SELECT %s FROM health_posts WHERE id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &p, query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postRepository) GetByExternalID(ctx context.Context, ext sqlx.ExtContext, externalID string) (*HealthPost, error) {
	var p HealthPost
	query := fmt.Sprintf(`SELECT %s FROM health_posts WHERE external_id = $1`, columns)
	if err := sqlx.GetContext(ctx, ext, &p, query, externalID); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetAssignedHub writes the hub only when it differs from the stored one and
// reports whether a row changed.
func (r *postRepository) SetAssignedHub(ctx context.Context, ext sqlx.ExtContext, postID, hubID uuid.UUID) (bool, error) {
	const query = `UPDATE health_posts SET assigned_hub_id = $2, updated_at = NOW()
		WHERE id = $1 AND assigned_hub_id IS DISTINCT FROM $2`
	res, err := ext.ExecContext(ctx, query, postID, hubID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *postRepository) ListByHub(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID) ([]*HealthPost, error) {
	var posts []*HealthPost
	query := fmt.Sprintf(`SELECT %s FROM health_posts WHERE assigned_hub_id = $1 ORDER BY name`, columns)
	if err := sqlx.SelectContext(ctx, ext, &posts, query, hubID); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) ListIDs(ctx context.Context, ext sqlx.ExtContext) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, ext, &ids, `SELECT id FROM health_posts ORDER BY created_at`); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *postRepository) ListIDsWithin(ctx context.Context, ext sqlx.ExtContext, center common.Location, radiusKM float64) ([]uuid.UUID, error) {
	const query = `SELECT id FROM health_posts
		WHERE (6371 * acos(LEAST(1.0, cos(radians($1)) * cos(radians(lat)) * cos(radians(lng) - radians($2)) + sin(radians($1)) * sin(radians(lat))))) <= $3
		ORDER BY created_at`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, ext, &ids, query, center.Lat, center.Lng, radiusKM); err != nil {
		return nil, err
	}
	return ids, nil
}
