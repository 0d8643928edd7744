package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAgainstOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordHTTPRequest("GET", "/api/previews/:id", "200", 10*time.Millisecond)
	m.RecordNavigation("cache-hit")
	m.RecordNavigation("resolved")
	m.RecordIntent("contact.submit", "backend", 50*time.Millisecond)
	m.RecordSandboxError()
	m.IncPreviews()
	m.IncWSConnections()
	m.RecordWSEvent("preview.ready")

	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/previews/:id", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Navigations.WithLabelValues("cache-hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Navigations.WithLabelValues("resolved")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.IntentTriggers.WithLabelValues("contact.submit", "backend")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SandboxErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PreviewsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WSConnections))

	m.DecPreviews()
	m.DecWSConnections()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.PreviewsActive))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.WSConnections))
}

func TestTwoInstancesDoNotCollide(t *testing.T) {
	require.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
