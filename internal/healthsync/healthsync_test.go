package healthsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posyandu-logistics/internal/common"
)

func TestClient_PushSendsSecretAndPayload(t *testing.T) {
	var got syncPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/posyandu-sync", r.URL.Path)
		assert.Equal(t, "s3cret", r.Header.Get("X-API-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "s3cret", time.Second)
	loc := common.NewLocation(-6.9, 107.6)
	require.NoError(t, c.Push(context.Background(), SourcePost{ExternalID: "P-1", Name: "Mawar", Location: &loc}))

	assert.Equal(t, "P-1", got.ExternalID)
	require.NotNil(t, got.Location)
	assert.Equal(t, -6.9, got.Location.Lat)
}

func TestClient_PushOmitsMissingLocation(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	require.NoError(t, c.Push(context.Background(), SourcePost{ExternalID: "P-1", Name: "Mawar", Address: "Bandung"}))
	assert.NotContains(t, raw, "location")
}

func TestClient_Shadow(t *testing.T) {
	synced := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/internal/posyandu-sync/P-1" {
			json.NewEncoder(w).Encode(ShadowRecord{ExternalID: "P-1", LastSyncedAt: synced})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", time.Second)
	rec, err := c.Shadow(context.Background(), "P-1")
	require.NoError(t, err)
	assert.True(t, synced.Equal(rec.LastSyncedAt))

	_, err = c.Shadow(context.Background(), "P-2")
	assert.ErrorIs(t, err, ErrShadowNotFound)
}

func countingServer(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		status := statuses[len(statuses)-1]
		if int(n) <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	srv, calls := countingServer(t, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK)
	d := NewDispatcher(NewClient(srv.URL, "k", time.Second), 3, time.Millisecond, nil)

	require.NoError(t, d.Deliver(context.Background(), SourcePost{ExternalID: "P-1"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	srv, calls := countingServer(t, http.StatusInternalServerError)
	d := NewDispatcher(NewClient(srv.URL, "k", time.Second), 3, time.Millisecond, nil)

	err := d.Deliver(context.Background(), SourcePost{ExternalID: "P-1"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))

	assert.NoError(t, d.SyncHealthPost(context.Background(), SourcePost{ExternalID: "P-1"}), "failures are swallowed")
	assert.Equal(t, int32(6), atomic.LoadInt32(calls))
}

func TestDispatcher_ClientErrorIsNotRetried(t *testing.T) {
	srv, calls := countingServer(t, http.StatusBadRequest)
	d := NewDispatcher(NewClient(srv.URL, "k", time.Second), 3, time.Millisecond, nil)

	require.Error(t, d.Deliver(context.Background(), SourcePost{ExternalID: "P-1"}))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestDispatcher_TooManyRequestsIsRetried(t *testing.T) {
	srv, calls := countingServer(t, http.StatusTooManyRequests, http.StatusOK)
	d := NewDispatcher(NewClient(srv.URL, "k", time.Second), 3, time.Millisecond, nil)

	require.NoError(t, d.Deliver(context.Background(), SourcePost{ExternalID: "P-1"}))
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

type staticSource []SourcePost

func (s staticSource) ListPosts(ctx context.Context) ([]SourcePost, error) { return s, nil }

type mapShadows map[string]time.Time

func (m mapShadows) Shadow(ctx context.Context, externalID string) (*ShadowRecord, error) {
	at, ok := m[externalID]
	if !ok {
		return nil, ErrShadowNotFound
	}
	return &ShadowRecord{ExternalID: externalID, LastSyncedAt: at}, nil
}

type recordingDeliverer struct {
	mu     sync.Mutex
	pushed []string
}

func (r *recordingDeliverer) Deliver(ctx context.Context, p SourcePost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, p.ExternalID)
	return nil
}

func TestReconciler_RepushesMissingAndStale(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	source := staticSource{
		{ExternalID: "missing", UpdatedAt: base},
		{ExternalID: "stale", UpdatedAt: base.Add(time.Hour)},
		{ExternalID: "fresh", UpdatedAt: base},
	}
	shadows := mapShadows{
		"stale": base,
		"fresh": base.Add(time.Minute),
	}
	deliver := &recordingDeliverer{}

	r := NewReconciler(source, shadows, deliver, 2, time.Minute, nil)
	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{InSync: 1, Pushed: 2, Checked: 3}, report)
	assert.ElementsMatch(t, []string{"missing", "stale"}, deliver.pushed)
}

func TestReconciler_NonPositiveIntervalFallsBackToDefault(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		r := NewReconciler(staticSource{}, mapShadows{}, &recordingDeliverer{}, 1, interval, nil)
		assert.Equal(t, DefaultReconcileInterval, r.interval)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.yaml")
	doc := `posts:
  - externalId: P-001
    name: Posyandu Mawar
    address: Jl. Merdeka 1, Bandung
    location: {lat: -6.91, lng: 107.61}
    updatedAt: 2026-01-02T15:04:05Z
  - externalId: P-002
    name: Posyandu Melati
    address: Cimahi
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	posts, err := FileSource{Path: path}.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.NotNil(t, posts[0].Location)
	assert.Equal(t, 107.61, posts[0].Location.Lng)
	assert.Nil(t, posts[1].Location)
	assert.Equal(t, 2026, posts[0].UpdatedAt.Year())
}
