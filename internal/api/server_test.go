package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/airgrid/internal/forecast"
	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/index"
	"github.com/sells-group/airgrid/internal/job"
	"github.com/sells-group/airgrid/internal/metrics"
	"github.com/sells-group/airgrid/internal/transit"
)

var testRegion = grid.BBox{MinX: 0, MinY: 0, MaxX: 1000, MaxY: 1000}

func historical(year string, v float64) *grid.Dataset {
	ds := grid.New(grid.Meta{Pollutant: "no2", Year: year, Units: "ug m-3"})
	ds.Append(grid.Record{GridID: 1, X: 0, Y: 0, Value: grid.Some(v)})
	ds.Append(grid.Record{GridID: 2, X: 1000, Y: 0, Value: grid.Some(2 * v)})
	ds.Append(grid.Record{GridID: 3, X: 0, Y: 1000, Value: grid.None()})
	return ds
}

type fixture struct {
	srv     *Server
	idx     *index.Index
	metrics *metrics.Collector
}

func newFixture(t *testing.T, ready bool) *fixture {
	t.Helper()
	idx := index.New()
	require.NoError(t, idx.Put("london", historical("2020", 10)))
	require.NoError(t, idx.Put("london", historical("2022", 14)))

	exp := transit.NewExposureDataset(grid.Meta{Pollutant: "pm25"})
	exp.AddRecord("Oxford Circus", "1", "0", "0", "5", "10")
	exp.AddRecord("Bond Street", "2", "0", "0", "5", "20")
	require.NoError(t, idx.Put(index.TransitEntity, exp))
	if ready {
		idx.MarkReady()
	}

	network, err := transit.DefaultNetwork("")
	require.NoError(t, err)
	m := metrics.NewCollector("airgrid_test")
	engine := forecast.NewEngine(idx, forecast.Config{Entity: "london", Region: testRegion, Stride: 1000}, m, nil)

	srv := NewServer(Deps{
		Index:      idx,
		Planner:    transit.NewPlanner(network, idx),
		Engine:     engine,
		Jobs:       job.NewTracker(),
		Metrics:    m,
		Pollutants: []string{"no2"},
	})
	return &fixture{srv: srv, idx: idx, metrics: m}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, false)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/ready", "").Code)

	rec := f.do(t, http.MethodGet, "/api/v1/datasets", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	// The network does not depend on ingestion.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/lines", "").Code)

	f.idx.MarkReady()
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/datasets", "").Code)
}

func TestListDatasets(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodGet, "/api/v1/datasets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Datasets []datasetKey `json:"datasets"`
	}](t, rec)
	require.Len(t, body.Datasets, 2)
	assert.Equal(t, "2020", body.Datasets[0].Year)
	assert.Equal(t, 3, body.Datasets[0].Records)
}

func TestDatasetSummary(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/v1/datasets/london/2020/no2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[grid.Summary](t, rec)
	assert.Equal(t, 3, sum.Records)
	assert.Equal(t, 1, sum.Missing)
	require.NotNil(t, sum.Max)
	assert.Equal(t, 20.0, *sum.Max)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/datasets/london/1999/no2", "").Code)
}

func TestNearest(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/v1/datasets/london/2020/no2/nearest?x=900&y=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[nearestResponse](t, rec)
	assert.Equal(t, 2, body.GridID)
	require.NotNil(t, body.Normalized)
	assert.Equal(t, 1.0, *body.Normalized)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/datasets/london/2020/no2/nearest?x=a&y=1", "").Code)
}

func TestRecords(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/v1/datasets/london/2020/no2/records?bbox=0,0,500,1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Records []recordJSON `json:"records"`
	}](t, rec)
	require.Len(t, body.Records, 2)
	assert.Nil(t, body.Records[1].Normalized)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/datasets/london/2020/no2/records?bbox=1,2,3", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/datasets/london/2020/no2/records?bbox=9,0,1,1", "").Code)
}

func TestJourney(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/v1/journey?from=Oxford+Circus&to=Bond+Street", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decode[transit.Plan](t, rec)
	assert.Equal(t, []string{"oxford circus", "bond street"}, plan.Stations)
	require.NotNil(t, plan.Exposure)
	assert.Equal(t, 30.0, plan.Exposure.TotalUnderground)
	assert.Equal(t, 10.0, plan.Exposure.TotalStreet)
	assert.Equal(t, 3.0, plan.Exposure.Ratio)
}

func TestJourney_Errors(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/v1/journey?from=Atlantis&to=Bond+Street", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[errorResponse](t, rec)
	assert.Contains(t, body.Error, "unknown station")
	assert.Contains(t, body.Error, "Atlantis")

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/journey?from=Bond+Street", "").Code)
}

func TestForecastLifecycle(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/v1/forecasts", `{"target_year": 2024}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decode[map[string]string](t, rec)
	id := started["id"]
	require.NotEmpty(t, id)
	assert.Equal(t, "/api/v1/forecasts/"+id, rec.Header().Get("Location"))

	require.Eventually(t, func() bool {
		info, ok := f.srv.deps.Jobs.Get(id)
		return ok && info.Status == job.StatusComplete
	}, 5*time.Second, 10*time.Millisecond)

	rec = f.do(t, http.MethodGet, "/api/v1/forecasts/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[map[string]any](t, rec)
	assert.Equal(t, "complete", info["status"])

	ds, ok := f.idx.Get("london", "2024", "no2")
	require.True(t, ok)
	assert.True(t, ds.Derived)

	rec = f.do(t, http.MethodGet, "/api/v1/forecasts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)
}

func TestForecast_BadRequests(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/forecasts", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/forecasts", `{"pollutants":["no2"]}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/forecasts/nope", "").Code)
}

func TestStoredDatasets_NoStore(t *testing.T) {
	f := newFixture(t, true)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/datasets/stored", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)
	f.do(t, http.MethodGet, "/api/v1/journey?from=Atlantis&to=Bond+Street", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "airgrid_test_journeys_total")
	assert.Contains(t, rec.Body.String(), `route="/api/v1/journey"`)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, true)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.org")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
