package hub

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"posyandu-logistics/internal/common"
	domainerrors "posyandu-logistics/internal/errors"
)

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ext sqlx.ExtContext) error) error
}

type Locator interface {
	Locate(ctx context.Context, address string, explicit *common.Location) (common.Location, bool, error)
}

// Reassigner re-evaluates health post assignments after a hub appears or
// moves. It must not block the caller.
type Reassigner interface {
	ReassignAround(loc common.Location)
}

type RegisterInput struct {
	Username string
	Password string
	Name     string
	Address  string
	Location *common.Location
}

type UpdateProfileInput struct {
	Name     *string
	Address  *string
	Location *common.Location
}

type SetStockInput struct {
	SKU      string
	Name     string
	Quantity int
	Unit     string
	MinStock int
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*Hub, error)
	Authenticate(ctx context.Context, username, password string) (*Hub, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Hub, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, in UpdateProfileInput) (*Hub, error)
	ListInventory(ctx context.Context, hubID uuid.UUID) ([]*InventoryItem, error)
	SetStock(ctx context.Context, hubID uuid.UUID, in SetStockInput) (*InventoryItem, error)
	ListMovements(ctx context.Context, hubID uuid.UUID, sku string, limit int) ([]*Movement, error)
	Stats(ctx context.Context, hubID uuid.UUID) (*Stats, error)
}

type service struct {
	repo       Repository
	db         sqlx.ExtContext
	tx         TxRunner
	locator    Locator
	reassigner Reassigner
	bcryptCost int
	now        func() time.Time
}

func NewService(repo Repository, db sqlx.ExtContext, tx TxRunner, locator Locator, reassigner Reassigner) Service {
	return &service{
		repo:       repo,
		db:         db,
		tx:         tx,
		locator:    locator,
		reassigner: reassigner,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*Hub, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" || strings.TrimSpace(in.Name) == "" {
		return nil, domainerrors.NewValidation("username, password and name are required")
	}

	loc, _, err := s.locator.Locate(ctx, in.Address, in.Location)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to hash password", err)
	}

	h := New(in.Username, string(hash), in.Name, in.Address, loc)
	if err := s.repo.Create(ctx, s.db, h); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, domainerrors.UsernameTaken(in.Username)
		}
		return nil, domainerrors.NewInternal("failed to create hub", err)
	}

	slog.InfoContext(ctx, "hub registered",
		slog.String("hub_id", h.ID.String()),
		slog.String("name", h.Name),
	)
	s.reassigner.ReassignAround(loc)
	return h, nil
}

func (s *service) Authenticate(ctx context.Context, username, password string) (*Hub, error) {
	h, err := s.repo.GetByUsername(ctx, s.db, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.InvalidCredentials()
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load hub", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.PasswordHash), []byte(password)); err != nil {
		return nil, domainerrors.InvalidCredentials()
	}
	return h, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*Hub, error) {
	h, err := s.repo.GetByID(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.HubNotFound(id.String())
	}
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load hub", err)
	}
	return h, nil
}

func (s *service) UpdateProfile(ctx context.Context, id uuid.UUID, in UpdateProfileInput) (*Hub, error) {
	h, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, domainerrors.NewValidation("name cannot be empty")
		}
		h.Name = *in.Name
		h.UpdatedAt = time.Now()
	}

	moved := false
	if in.Address != nil || in.Location != nil {
		address := h.Address
		if in.Address != nil {
			address = *in.Address
		}
		explicit := in.Location
		if explicit == nil && in.Address == nil {
			loc := h.Location()
			explicit = &loc
		}
		loc, _, err := s.locator.Locate(ctx, address, explicit)
		if err != nil {
			return nil, err
		}
		moved = h.Relocate(address, loc)
	}

	if err := s.repo.Update(ctx, s.db, h); err != nil {
		return nil, domainerrors.NewInternal("failed to update hub", err)
	}

	if moved {
		slog.InfoContext(ctx, "hub relocated",
			slog.String("hub_id", h.ID.String()),
			slog.Float64("lat", h.Lat),
			slog.Float64("lng", h.Lng),
		)
		s.reassigner.ReassignAround(h.Location())
	}
	return h, nil
}

func (s *service) ListInventory(ctx context.Context, hubID uuid.UUID) ([]*InventoryItem, error) {
	items, err := s.repo.ListInventory(ctx, s.db, hubID)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to list inventory", err)
	}
	return items, nil
}

func (s *service) SetStock(ctx context.Context, hubID uuid.UUID, in SetStockInput) (*InventoryItem, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	if in.SKU == "" {
		return nil, domainerrors.NewValidation("sku is required")
	}
	if in.Quantity < 0 || in.MinStock < 0 {
		return nil, domainerrors.NewValidation("quantity and min_stock cannot be negative")
	}
	if in.Unit == "" {
		in.Unit = "pcs"
	}

	item := &InventoryItem{
		HubID:     hubID,
		SKU:       in.SKU,
		Name:      in.Name,
		Quantity:  in.Quantity,
		Unit:      in.Unit,
		MinStock:  in.MinStock,
		UpdatedAt: time.Now(),
	}
	if item.Name == "" {
		item.Name = in.SKU
	}

	err := s.tx.RunInTx(ctx, func(ext sqlx.ExtContext) error {
		prev, err := s.repo.LockItem(ctx, ext, hubID, in.SKU)
		if err != nil {
			return err
		}
		before := 0
		if prev != nil {
			before = prev.Quantity
		}

		if err := s.repo.UpsertItem(ctx, ext, item); err != nil {
			return err
		}
		if delta := item.Quantity - before; delta != 0 {
			return s.repo.RecordMovement(ctx, ext, NewMovement(hubID, item.SKU, delta, item.Quantity, ReasonAdjustment, nil))
		}
		return nil
	})
	if err != nil {
		return nil, domainerrors.NewInternal("failed to set stock", err)
	}
	return item, nil
}

func (s *service) ListMovements(ctx context.Context, hubID uuid.UUID, sku string, limit int) ([]*Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out, err := s.repo.ListMovements(ctx, s.db, hubID, sku, limit)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to list stock movements", err)
	}
	return out, nil
}

// Stats counts "today" from local midnight.
func (s *service) Stats(ctx context.Context, hubID uuid.UUID) (*Stats, error) {
	now := s.now()
	y, m, d := now.Date()
	since := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	st, err := s.repo.Stats(ctx, s.db, hubID, since)
	if err != nil {
		return nil, domainerrors.NewInternal("failed to load hub stats", err)
	}
	if st.TotalDrivers > 0 {
		st.DriverAvailability = int(math.Round(float64(st.AvailableDrivers) * 100 / float64(st.TotalDrivers)))
	}
	return st, nil
}
