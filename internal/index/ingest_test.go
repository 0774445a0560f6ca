package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/metrics"
	"github.com/sells-group/airgrid/internal/transit"
)

// fakeSource serves in-memory datasets keyed by path.
type fakeSource struct {
	files map[string][]string
	data  map[string]*Loaded
	fail  map[string]error
}

func (f *fakeSource) Discover(dir string) ([]string, error) {
	paths, ok := f.files[dir]
	if !ok {
		return nil, fmt.Errorf("no such dir %s", dir)
	}
	return paths, nil
}

func (f *fakeSource) Load(_ context.Context, path string) (*Loaded, error) {
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	return f.data[path], nil
}

var region = grid.BBox{MinX: 0, MinY: 0, MaxX: 100, MaxY: 100}

func newFakeSource() *fakeSource {
	no2 := grid.New(grid.Meta{Pollutant: "no2", Year: "2020"})
	no2.AddRecord("1", "10", "10", "30")
	no2.AddRecord("2", "50", "50", "35")
	no2.AddRecord("3", "500", "500", "40")

	pm10 := grid.New(grid.Meta{Pollutant: "pm10", Year: "2020"})
	pm10.AddRecord("1", "10", "10", "18")

	tds := transit.NewExposureDataset(grid.Meta{Pollutant: "pm25"})
	tds.AddRecord("bank", "1", "10", "10", "5", "40")

	return &fakeSource{
		files: map[string][]string{
			"data":  {"no2.csv", "pm10.csv", "transit.csv", "bad.csv"},
			"empty": {},
		},
		data: map[string]*Loaded{
			"no2.csv":     {Entity: "london", Dataset: no2},
			"pm10.csv":    {Entity: "london", Dataset: pm10},
			"transit.csv": {Entity: TransitEntity, Dataset: tds},
		},
		fail: map[string]error{"bad.csv": fmt.Errorf("corrupt")},
	}
}

func TestIngestDirectory(t *testing.T) {
	x := New()
	ing := NewIngester(x, newFakeSource(), region, WithConcurrency(2), WithMetrics(metrics.NewCollector("test")))

	res, err := ing.IngestDirectory(context.Background(), "data")
	require.NoError(t, err)

	assert.Equal(t, 4, res.Files)
	assert.Equal(t, 3, res.Datasets)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 1, res.Filtered)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "bad.csv", res.Failures[0].Path)

	d, ok := x.Get("london", "2020", "no2")
	require.True(t, ok)
	assert.Equal(t, 2, d.Len())
	for _, r := range d.Records() {
		assert.True(t, region.Contains(r.X, r.Y))
	}

	_, ok = x.Transit()
	assert.True(t, ok)

	// Ingestion alone does not flip readiness.
	assert.False(t, x.IsReady())
}

func TestIngestDirectory_DiscoverError(t *testing.T) {
	ing := NewIngester(New(), newFakeSource(), region)
	_, err := ing.IngestDirectory(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover")
}

func TestIngestDirectory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := New()
	ing := NewIngester(x, newFakeSource(), region)
	_, err := ing.IngestDirectory(ctx, "data")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, x.Len())
}

func TestStart_MarksReady(t *testing.T) {
	x := New()
	ing := NewIngester(x, newFakeSource(), region)

	f := ing.Start(context.Background(), "data", "empty", "nope")
	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, x.IsReady())

	assert.Equal(t, 4, res.Files)
	// bad.csv plus the missing directory.
	assert.Len(t, res.Failures, 2)
}

func TestStart_AllFailStillReady(t *testing.T) {
	x := New()
	ing := NewIngester(x, newFakeSource(), region)

	_, err := ing.Start(context.Background(), "nope").Wait(context.Background())
	require.Error(t, err)
	assert.True(t, x.IsReady())
}
