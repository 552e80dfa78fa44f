package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	m1, err := New(reg)
	require.NoError(t, err)
	m2, err := New(reg)
	require.NoError(t, err)

	m1.TravelTimeLookup("cache")
	m2.TravelTimeLookup("cache")

	assert.Equal(t, float64(2), testutil.ToFloat64(m1.travelTime.WithLabelValues("cache")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.TravelTimeLookup("fallback")
	m.DispatchAttempt("success")
	m.SyncPush("failed")
	m.ProviderLatency("distance_matrix", 0.2)
}
