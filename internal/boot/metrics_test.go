package boot

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreRegisteredAndServed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.DispatchTotal.WithLabelValues("code_simple", "ok").Inc()
	m.QueueDepth.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), "taskforge_dispatch_total")
	require.Contains(t, w.Body.String(), "taskforge_queue_depth")
}
