package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Regenerated()
	m.Regenerated()
	m.Invalidated(true)
	m.Invalidated(false)
	m.Invalidated(false)
	m.Rearmed()
	m.Rendered("jpeg", 10*time.Millisecond, 1234, nil)
	m.Rendered("jpeg", time.Millisecond, 0, errors.New("boom"))
	m.Saved("png24", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.regenerations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidations.WithLabelValues("all")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.invalidations.WithLabelValues("render")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rearms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rendersTotal.WithLabelValues("jpeg", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rendersTotal.WithLabelValues("jpeg", "error")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.encodedBytes.WithLabelValues("jpeg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.savesTotal.WithLabelValues("png24", "ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Regenerated()
	m.Invalidated(true)
	m.Rearmed()
	m.Rendered("gif", time.Second, 1, nil)
	m.Saved("gif", nil)
	assert.Nil(t, m.Registry())
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.Regenerated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "webx_pipeline_regenerations_total 1"))
}
