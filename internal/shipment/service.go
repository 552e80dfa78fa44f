package shipment

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "posyandu-logistics/internal/errors"
	"posyandu-logistics/internal/events"
	"posyandu-logistics/internal/registry"
)

type PostFinder interface {
	GetByExternalID(ctx context.Context, externalID string) (*registry.HealthPost, error)
}

type HubResolver interface {
	Resolve(ctx context.Context, postID uuid.UUID) (uuid.UUID, error)
}

type CreateRequestInput struct {
	ExternalRequestID string
	PostExternalID    string
	PatientSummary    string
	Urgency           string
}

type Service interface {
	// CreateRequest opens a PENDING shipment for an aid request. Replaying
	// an external request id returns the original shipment and false.
	CreateRequest(ctx context.Context, in CreateRequestInput) (*Shipment, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*Shipment, error)
	GetByExternalRequestID(ctx context.Context, externalRequestID string) (*Shipment, error)
	ListByHub(ctx context.Context, hubID uuid.UUID, status *Status) ([]*Shipment, error)
}

type service struct {
	repo      Repository
	db        sqlx.ExtContext
	posts     PostFinder
	resolver  HubResolver
	publisher events.Publisher
}

func NewService(repo Repository, db sqlx.ExtContext, posts PostFinder, resolver HubResolver, publisher events.Publisher) Service {
	return &service{
		repo:      repo,
		db:        db,
		posts:     posts,
		resolver:  resolver,
		publisher: publisher,
	}
}

func (s *service) CreateRequest(ctx context.Context, in CreateRequestInput) (*Shipment, bool, error) {
	in.ExternalRequestID = strings.TrimSpace(in.ExternalRequestID)
	if in.ExternalRequestID == "" || strings.TrimSpace(in.PostExternalID) == "" {
		return nil, false, domainerrors.NewValidation("externalRequestId and postExternalId are required")
	}

	existing, err := s.repo.GetByExternalRequestID(ctx, s.db, in.ExternalRequestID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, domainerrors.NewInternal("failed to load shipment", err)
	}

	post, err := s.posts.GetByExternalID(ctx, in.PostExternalID)
	if err != nil {
		return nil, false, err
	}

	// Re-resolve so the request lands on the hub that is best right now,
	// even if a background sweep has not caught up.
	hubID, err := s.resolver.Resolve(ctx, post.ID)
	if err != nil {
		return nil, false, domainerrors.NewInternal("failed to resolve hub", err)
	}
	if hubID == uuid.Nil {
		return nil, false, domainerrors.NoHubAssigned(in.PostExternalID)
	}

	sh := New(in.ExternalRequestID, post.ID, hubID, in.PatientSummary, in.Urgency)
	created, err := s.repo.Create(ctx, s.db, sh)
	if err != nil {
		return nil, false, domainerrors.NewInternal("failed to create shipment", err)
	}
	if !created {
		// Lost a race with a concurrent replay of the same request.
		existing, err := s.repo.GetByExternalRequestID(ctx, s.db, in.ExternalRequestID)
		if err != nil {
			return nil, false, domainerrors.NewInternal("failed to load shipment", err)
		}
		return existing, false, nil
	}

	slog.InfoContext(ctx, "shipment requested",
		slog.String("shipment_id", sh.ID.String()),
		slog.String("external_request_id", sh.ExternalRequestID),
		slog.String("hub_id", hubID.String()),
	)
	events.PublishLogged(ctx, s.publisher, events.ShipmentEvent{
		Type:              events.ShipmentRequested,
		ShipmentID:        sh.ID,
		ExternalRequestID: sh.ExternalRequestID,
		HubID:             sh.HubID,
		Status:            string(sh.Status),
	})
	return sh, true, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Shipment, error) {
	sh, err := s.repo.GetByID(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ShipmentNotFound(id.String())
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load shipment", err)
	}
	return sh, nil
}

func (s *service) GetByExternalRequestID(ctx context.Context, externalRequestID string) (*Shipment, error) {
	sh, err := s.repo.GetByExternalRequestID(ctx, s.db, externalRequestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ShipmentNotFound(externalRequestID)
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load shipment", err)
	}
	return sh, nil
}

func (s *service) ListByHub(ctx context.Context, hubID uuid.UUID, status *Status) ([]*Shipment, error) {
	out, err := s.repo.ListByHub(ctx, s.db, hubID, status)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to list shipments", err)
	}
	return out, nil
}
