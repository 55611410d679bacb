package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus bool

func (b fakeBus) Connected() bool { return bool(b) }

type fakeSessions struct {
	n   int
	err error
}

func (s fakeSessions) Count(context.Context) (int, error) { return s.n, s.err }

func TestCollector(t *testing.T) {
	c := NewCollector(fakeBus(true), fakeSessions{n: 4}, time.Now().Add(-time.Minute))

	assert.Equal(t, 3, testutil.CollectAndCount(c))
	err := testutil.CollectAndCompare(c, strings.NewReader(`
# HELP switchyard_bus_connected Switch bus connection state (1=connected, 0=down)
# TYPE switchyard_bus_connected gauge
switchyard_bus_connected 1
# HELP switchyard_httapi_sessions Number of live HTTAPI sessions
# TYPE switchyard_httapi_sessions gauge
switchyard_httapi_sessions 4
`), "switchyard_bus_connected", "switchyard_httapi_sessions")
	require.NoError(t, err)
}

func TestCollectorSkipsUnavailable(t *testing.T) {
	c := NewCollector(nil, fakeSessions{err: errors.New("valkey down")}, time.Now())
	assert.Equal(t, 1, testutil.CollectAndCount(c))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "switchyard_uptime_seconds"))
}

func TestNewRegistersCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CDRIngested.WithLabelValues("xml", "stored").Inc()
	m.CDRIngested.WithLabelValues("xml", "stored").Inc()
	m.Invalidations.WithLabelValues("extension").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CDRIngested.WithLabelValues("xml", "stored")))
	n, err := testutil.GatherAndCount(reg, "switchyard_cdr_ingested_total", "switchyard_cache_invalidations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
