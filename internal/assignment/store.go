package assignment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"posyandu-logistics/internal/common"
	"posyandu-logistics/internal/hub"
	"posyandu-logistics/internal/registry"
)

// Store is the persistence the resolver needs. GetPost returns nil, nil
// for an unknown post.
type Store interface {
	GetPost(ctx context.Context, id uuid.UUID) (*registry.HealthPost, error)
	NearestHubs(ctx context.Context, loc common.Location, limit int) ([]hub.Candidate, error)
	SetAssignedHub(ctx context.Context, postID, hubID uuid.UUID) (bool, error)
	ListPostIDs(ctx context.Context, around *common.Location, radiusKM float64) ([]uuid.UUID, error)
}

type postgresStore struct {
	db    sqlx.ExtContext
	posts registry.Repository
	hubs  hub.Repository
}

func NewStore(db sqlx.ExtContext, posts registry.Repository, hubs hub.Repository) Store {
	return &postgresStore{db: db, posts: posts, hubs: hubs}
}

func (s *postgresStore) GetPost(ctx context.Context, id uuid.UUID) (*registry.HealthPost, error) {
	p, err := s.posts.GetByID(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *postgresStore) NearestHubs(ctx context.Context, loc common.Location, limit int) ([]hub.Candidate, error) {
	return s.hubs.Nearest(ctx, s.db, loc, limit)
}

func (s *postgresStore) SetAssignedHub(ctx context.Context, postID, hubID uuid.UUID) (bool, error) {
	return s.posts.SetAssignedHub(ctx, s.db, postID, hubID)
}

// ListPostIDs returns every post, or only those within radiusKM of around
// when both are set.
func (s *postgresStore) ListPostIDs(ctx context.Context, around *common.Location, radiusKM float64) ([]uuid.UUID, error) {
	if around != nil && radiusKM > 0 {
		return s.posts.ListIDsWithin(ctx, s.db, *around, radiusKM)
	}
	return s.posts.ListIDs(ctx, s.db)
}
