package geo

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posyandu-logistics/internal/common"
)

type stubTravel struct {
	mu    sync.Mutex
	calls int
	d     time.Duration
	err   error
	delay time.Duration
}

func (s *stubTravel) TravelTime(ctx context.Context, from, to common.Location) (time.Duration, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.d, s.err
}

type memShared struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemShared() *memShared { return &memShared{data: map[string][]byte{}} }

func (m *memShared) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memShared) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

var (
	post = common.NewLocation(-6.9147, 107.6098)
	hub  = common.NewLocation(-6.9300, 107.6300)
)

func newTestOracle(p *stubTravel, shared SharedStore) *Oracle {
	cache := NewTieredCache[time.Duration](100, time.Hour, shared)
	if p == nil {
		return NewOracle(nil, cache, 50*time.Millisecond, nil)
	}
	return NewOracle(p, cache, 50*time.Millisecond, nil)
}

func TestOracle_ProviderOKIsCached(t *testing.T) {
	p := &stubTravel{d: 540 * time.Second}
	o := newTestOracle(p, nil)

	assert.Equal(t, 540*time.Second, o.TravelTime(context.Background(), post, hub))
	assert.Equal(t, 540*time.Second, o.TravelTime(context.Background(), post, hub))
	assert.Equal(t, 1, p.calls)
}

func TestOracle_KeyRoundingSharesEntry(t *testing.T) {
	p := &stubTravel{d: 60 * time.Second}
	o := newTestOracle(p, nil)

	o.TravelTime(context.Background(), common.NewLocation(-6.91470001, 107.6098), hub)
	o.TravelTime(context.Background(), common.NewLocation(-6.91470004, 107.60980002), hub)
	assert.Equal(t, 1, p.calls)
}

func TestOracle_ProviderFailureFallsBack(t *testing.T) {
	p := &stubTravel{err: errors.New("quota exceeded")}
	o := newTestOracle(p, nil)

	got := o.TravelTime(context.Background(), post, hub)
	assert.Equal(t, FallbackTravelTime(post, hub), got)
	assert.Greater(t, got, time.Duration(0))

	// failures are not cached, the provider is retried next time
	o.TravelTime(context.Background(), post, hub)
	assert.Equal(t, 2, p.calls)
}

func TestOracle_TimeoutFallsBack(t *testing.T) {
	p := &stubTravel{d: time.Second, delay: time.Second}
	o := newTestOracle(p, nil)

	start := time.Now()
	got := o.TravelTime(context.Background(), post, hub)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, FallbackTravelTime(post, hub), got)
}

func TestOracle_NoProviderUsesEstimate(t *testing.T) {
	o := newTestOracle(nil, nil)
	assert.Equal(t, FallbackTravelTime(post, hub), o.TravelTime(context.Background(), post, hub))
}

func TestOracle_SharedTierServesOtherInstances(t *testing.T) {
	shared := newMemShared()
	p1 := &stubTravel{d: 420 * time.Second}
	newTestOracle(p1, shared).TravelTime(context.Background(), post, hub)

	p2 := &stubTravel{err: errors.New("should not be called")}
	got := newTestOracle(p2, shared).TravelTime(context.Background(), post, hub)

	assert.Equal(t, 420*time.Second, got)
	assert.Equal(t, 0, p2.calls)
}

func TestFallbackTravelTime(t *testing.T) {
	a := common.NewLocation(0, 0)
	b := common.NewLocation(0.3, 0.4)

	got := FallbackTravelTime(a, b)
	want := time.Duration(math.Floor(common.EuclideanDegrees(a, b)*fallbackSecondsPerDegree)) * time.Second
	assert.InDelta(t, 5000, want.Seconds(), 1)
	assert.Equal(t, want, got)
	assert.Equal(t, time.Duration(0), got%time.Second)
	assert.Equal(t, time.Duration(0), FallbackTravelTime(a, a))
}

func TestTravelTimeKey(t *testing.T) {
	key := TravelTimeKey(common.NewLocation(-6.91474, 107.60981), common.NewLocation(-6.93, 107.63))
	require.Equal(t, "-6.9147,107.6098--6.9300,107.6300", key)
}
