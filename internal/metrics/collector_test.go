package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("airgrid")

	c.RecordIngestFile("ok")
	c.RecordIngestFile("ok")
	c.RecordIngestFile("failed")
	c.RecordIngestRecords("no2", 250)
	c.RecordForecastCells("no2", "emitted", 10)
	c.RecordForecastCells("no2", "degenerate", 0)
	c.RecordJourney("ok")
	c.SetIndexDatasets(4)

	assert.InDelta(t, 2, testutil.ToFloat64(c.IngestFilesTotal.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.IngestFilesTotal.WithLabelValues("failed")), 0)
	assert.InDelta(t, 250, testutil.ToFloat64(c.IngestRecordsTotal.WithLabelValues("no2")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(c.ForecastCellsTotal.WithLabelValues("no2", "emitted")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(c.IndexDatasets), 0)
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("airgrid")
	c.ObserveAPIRequest("/health", "GET", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "airgrid_api_requests_total")
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordIngestFile("ok")
		c.RecordIngestRecords("no2", 1)
		c.RecordIngestError("parse")
		c.ObserveIngest(time.Second)
		c.SetIndexDatasets(1)
		c.RecordForecastCells("no2", "emitted", 1)
		c.ObserveForecast("no2", time.Second)
		c.RecordJourney("ok")
		c.ObserveAPIRequest("/", "GET", "200", time.Second)
	})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
