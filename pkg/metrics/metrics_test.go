package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCacheLookup(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.CacheLookup(CacheResult, true)
	m.CacheLookup(CacheResult, false)
	m.CacheLookup(CacheResult, false)
	m.CacheLookup(CacheFuzzy, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(CacheResult)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues(CacheResult)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues(CacheFuzzy)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup(CacheShared, true)
		m.BreakerState("redis", 1)
	})
}

func TestBreakerState(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.BreakerState("redis", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis")))
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
