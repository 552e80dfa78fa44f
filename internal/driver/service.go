package driver

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	domainerrors "posyandu-logistics/internal/errors"
)

type CreateInput struct {
	Name          string
	Phone         string
	VehicleNumber string
}

type Service interface {
	Create(ctx context.Context, hubID uuid.UUID, in CreateInput) (*Driver, error)
	List(ctx context.Context, hubID uuid.UUID, status *Status) ([]*Driver, error)
	UpdateStatus(ctx context.Context, hubID, driverID uuid.UUID, to Status) (*Driver, error)
}

type service struct {
	repo Repository
	db   sqlx.ExtContext
}

func NewService(repo Repository, db sqlx.ExtContext) Service {
	return &service{repo: repo, db: db}
}

func (s *service) Create(ctx context.Context, hubID uuid.UUID, in CreateInput) (*Driver, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Phone) == "" {
		return nil, domainerrors.NewValidation("name and phone are required")
	}

	d := New(hubID, in.Name, in.Phone, in.VehicleNumber)
	if err := s.repo.Create(ctx, s.db, d); err != nil {
		return nil, domainerrors.NewInternal("failed to create driver", err)
	}

	slog.InfoContext(ctx, "driver created",
		slog.String("hub_id", hubID.String()),
		slog.String("driver_id", d.ID.String()),
	)
	return d, nil
}

func (s *service) List(ctx context.Context, hubID uuid.UUID, status *Status) ([]*Driver, error) {
	if status != nil && !status.Valid() {
		return nil, domainerrors.NewValidation("unknown driver status " + string(*status))
	}
	drivers, err := s.repo.ListByHub(ctx, s.db, hubID, status)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to list drivers", err)
	}
	return drivers, nil
}

func (s *service) UpdateStatus(ctx context.Context, hubID, driverID uuid.UUID, to Status) (*Driver, error) {
	d, err := s.repo.GetByID(ctx, s.db, driverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.DriverNotFound(driverID.String())
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load driver", err)
	}
	if d.HubID != hubID {
		return nil, domainerrors.DriverNotFound(driverID.String())
	}

	from := d.Status
	releasedShipment := d.CurrentShipmentID
	forced, err := d.SetManualStatus(to)
	if err != nil {
		return nil, err
	}
	if from == d.Status {
		return d, nil
	}

	ok, err := s.repo.UpdateStatusCAS(ctx, s.db, d, from)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to update driver status", err)
	}
	if !ok {
		return nil, domainerrors.NewConcurrencyConflict("driver status changed concurrently, please retry")
	}

	if forced {
		attrs := []any{
			slog.String("driver_id", d.ID.String()),
			slog.String("hub_id", hubID.String()),
		}
		if releasedShipment != nil {
			attrs = append(attrs, slog.String("shipment_id", releasedShipment.String()))
		}
		slog.WarnContext(ctx, "driver lock force-released", attrs...)
	} else {
		slog.InfoContext(ctx, "driver status changed",
			slog.String("driver_id", d.ID.String()),
			slog.String("from", string(from)),
			slog.String("to", string(d.Status)),
		)
	}
	return d, nil
}
