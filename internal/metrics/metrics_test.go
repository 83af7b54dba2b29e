package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRelayMetrics_RegistersWithoutConflicts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)

	collectors := []prometheus.Collector{
		m.ActiveConnections,
		m.BroadcastsTotal,
		m.DeliveriesTotal,
		m.DeliveryFailures,
		m.MalformedPayloads,
		m.RateLimited,
	}
	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 1)
		c.Describe(desc)
		close(desc)
		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}

	assert.Panics(t, func() { NewRelayMetrics(reg) }, "registering twice should conflict")
}

func TestRelayMetrics_Values(t *testing.T) {
	m := NewRelayMetrics(prometheus.NewRegistry())

	m.ActiveConnections.Set(3)
	m.BroadcastsTotal.WithLabelValues("message").Inc()
	m.BroadcastsTotal.WithLabelValues("message").Inc()
	m.BroadcastsTotal.WithLabelValues("user_joined").Inc()
	m.DeliveryFailures.Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastsTotal.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastsTotal.WithLabelValues("user_joined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Zero(t, testutil.ToFloat64(m.RateLimited))
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewRelayMetrics(reg)
	m.DeliveriesTotal.Add(7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "chatrelay_deliveries_total 7"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
