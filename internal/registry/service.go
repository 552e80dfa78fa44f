package registry

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"posyandu-logistics/internal/common"
	domainerrors "posyandu-logistics/internal/errors"
)

type Locator interface {
	Locate(ctx context.Context, address string, explicit *common.Location) (common.Location, bool, error)
}

// HubResolver recomputes the nearest hub for one post and returns the hub
// now assigned (uuid.Nil when there is none).
type HubResolver interface {
	Resolve(ctx context.Context, postID uuid.UUID) (uuid.UUID, error)
}

type SyncInput struct {
	ExternalID string
	Name       string
	Address    string
	Location   *common.Location
}

type Service interface {
	Sync(ctx context.Context, in SyncInput) (*HealthPost, error)
	GetByExternalID(ctx context.Context, externalID string) (*HealthPost, error)
	ListByHub(ctx context.Context, hubID uuid.UUID) ([]*HealthPost, error)
}

type service struct {
	repo     Repository
	db       sqlx.ExtContext
	locator  Locator
	resolver HubResolver
	now      func() time.Time
}

func NewService(repo Repository, db sqlx.ExtContext, locator Locator, resolver HubResolver) Service {
	return &service{
		repo:     repo,
		db:       db,
		locator:  locator,
		resolver: resolver,
		now:      time.Now,
	}
}

// Sync upserts the shadow copy of a health post and re-resolves its hub.
// Resolution failures are logged; the upsert already happened and the next
// sync or request will retry the resolution.
func (s *service) Sync(ctx context.Context, in SyncInput) (*HealthPost, error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	if in.ExternalID == "" {
		return nil, domainerrors.NewValidation("externalId is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, domainerrors.NewValidation("name is required")
	}

	loc, precise, err := s.locator.Locate(ctx, in.Address, in.Location)
	if err != nil {
		return nil, err
	}

	now := s.now()
	post := &HealthPost{
		ID:              uuid.New(),
		ExternalID:      in.ExternalID,
		Name:            in.Name,
		Address:         in.Address,
		Lat:             loc.Lat,
		Lng:             loc.Lng,
		LocationPrecise: precise,
		LastSyncedAt:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Upsert(ctx, s.db, post); err != nil {
		return nil, domainerrors.NewInternal("failed to upsert health post", err)
	}

	slog.InfoContext(ctx, "health post synced",
		slog.String("external_id", post.ExternalID),
		slog.String("post_id", post.ID.String()),
		slog.Bool("precise", precise),
	)

	hubID, err := s.resolver.Resolve(ctx, post.ID)
	if err != nil {
		slog.ErrorContext(ctx, "hub resolution after sync failed",
			slog.String("post_id", post.ID.String()),
			slog.String("error", err.Error()),
		)
		return post, nil
	}
	if hubID != uuid.Nil {
		post.AssignedHubID = &hubID
	}
	return post, nil
}

func (s *service) GetByExternalID(ctx context.Context, externalID string) (*HealthPost, error) {
	p, err := s.repo.GetByExternalID(ctx, s.db, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.HealthPostNotFound(externalID)
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load health post", err)
	}
	return p, nil
}

func (s *service) ListByHub(ctx context.Context, hubID uuid.UUID) ([]*HealthPost, error) {
	posts, err := s.repo.ListByHub(ctx, s.db, hubID)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to list health posts", err)
	}
	return posts, nil
}
