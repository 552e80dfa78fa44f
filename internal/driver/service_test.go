package driver

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "posyandu-logistics/internal/errors"
)

type memRepo struct {
	mu      sync.Mutex
	drivers map[uuid.UUID]*Driver
	// stale forces the next CAS to miss, as if another writer got there first.
	stale bool
}

func newMemRepo() *memRepo {
	return &memRepo{drivers: map[uuid.UUID]*Driver{}}
}

func (m *memRepo) Create(ctx context.Context, ext sqlx.ExtContext, d *Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.drivers[d.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, ext sqlx.ExtContext, id uuid.UUID) (*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) ListByHub(ctx context.Context, ext sqlx.ExtContext, hubID uuid.UUID, status *Status) ([]*Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Driver
	for _, d := range m.drivers {
		if d.HubID == hubID && (status == nil || d.Status == *status) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateStatusCAS(ctx context.Context, ext sqlx.ExtContext, d *Driver, expected Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.drivers[d.ID]
	if !ok || stored.Status != expected || m.stale {
		return false, nil
	}
	stored.Status = d.Status
	stored.CurrentShipmentID = d.CurrentShipmentID
	return true, nil
}

func (m *memRepo) Claim(ctx context.Context, ext sqlx.ExtContext, driverID, hubID, shipmentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok || d.HubID != hubID || d.Status != StatusAvailable {
		return false, nil
	}
	d.Status = StatusOnDelivery
	d.CurrentShipmentID = &shipmentID
	return true, nil
}

func (m *memRepo) ReleaseByShipment(ctx context.Context, ext sqlx.ExtContext, shipmentID uuid.UUID) (bool, error) {
	return false, nil
}

func TestCreateAndList(t *testing.T) {
	svc := NewService(newMemRepo(), nil)
	hubID := uuid.New()

	d, err := svc.Create(context.Background(), hubID, CreateInput{Name: "Budi", Phone: "0812"})
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, d.Status)

	_, err = svc.Create(context.Background(), uuid.New(), CreateInput{Name: "Other", Phone: "0899"})
	require.NoError(t, err)

	drivers, err := svc.List(context.Background(), hubID, nil)
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, d.ID, drivers[0].ID)

	_, err = svc.Create(context.Background(), hubID, CreateInput{Name: "NoPhone"})
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrValidation))
}

func TestUpdateStatus_ForceReleaseClearsLock(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	hubID := uuid.New()

	d, err := svc.Create(context.Background(), hubID, CreateInput{Name: "Budi", Phone: "0812"})
	require.NoError(t, err)
	claimed, err := repo.Claim(context.Background(), nil, d.ID, hubID, uuid.New())
	require.NoError(t, err)
	require.True(t, claimed)

	got, err := svc.UpdateStatus(context.Background(), hubID, d.ID, StatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, got.Status)
	assert.Nil(t, repo.drivers[d.ID].CurrentShipmentID)
}

func TestUpdateStatus_OtherHubIsNotFound(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	d, err := svc.Create(context.Background(), uuid.New(), CreateInput{Name: "Budi", Phone: "0812"})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), uuid.New(), d.ID, StatusOffDuty)
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrNotFound))
}

func TestUpdateStatus_ConcurrentChangeIsConflict(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	hubID := uuid.New()
	d, err := svc.Create(context.Background(), hubID, CreateInput{Name: "Budi", Phone: "0812"})
	require.NoError(t, err)

	repo.stale = true
	_, err = svc.UpdateStatus(context.Background(), hubID, d.ID, StatusOffDuty)
	assert.True(t, domainerrors.HasCode(err, domainerrors.ErrConcurrencyConflict))
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	hubID := uuid.New()
	d, err := svc.Create(context.Background(), hubID, CreateInput{Name: "Budi", Phone: "0812"})
	require.NoError(t, err)

	repo.stale = true
	got, err := svc.UpdateStatus(context.Background(), hubID, d.ID, StatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, got.Status)
}
