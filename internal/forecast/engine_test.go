package forecast

import (
	"context"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/index"
)

// ---------------------------------------------------------------------------
// Fit
// ---------------------------------------------------------------------------

func TestFit_TwoPoints(t *testing.T) {
	line, err := Fit([]Point{{Year: 2020, Value: 10}, {Year: 2022, Value: 14}})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, line.Slope, 1e-9)
	assert.InDelta(t, 18.0, line.At(2024), 1e-9)
}

func TestFit_LeastSquares(t *testing.T) {
	line, err := Fit([]Point{{2010, 1}, {2011, 2}, {2012, 2}, {2013, 4}})
	require.NoError(t, err)
	// Hand-computed: slope 0.9, intercept at 2010 = 0.9
	assert.InDelta(t, 0.9, line.Slope, 1e-9)
	assert.InDelta(t, 0.9, line.At(2010), 1e-9)
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit([]Point{{2020, 1}})
	assert.True(t, eris.Is(err, ErrInsufficientPoints))

	_, err = Fit([]Point{{2020, 1}, {2020, 5}})
	assert.True(t, eris.Is(err, ErrDegenerateRegression))
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

var testRegion = grid.BBox{MinX: 0, MinY: 0, MaxX: 2000, MaxY: 1000}

func seedIndex(t *testing.T, years map[string]float64) *index.Index {
	t.Helper()
	idx := index.New()
	for year, v := range years {
		d := grid.New(grid.Meta{Pollutant: "no2", Year: year, Metric: "annual mean", Units: "ppb"})
		d.Append(grid.Record{GridID: 1, X: 0, Y: 0, Value: grid.Some(v)})
		d.Append(grid.Record{GridID: 2, X: 2000, Y: 1000, Value: grid.Some(v * 2)})
		require.NoError(t, idx.Put("london", d))
	}
	return idx
}

type recordingPublisher struct {
	saved []*grid.Dataset
	err   error
}

func (p *recordingPublisher) SaveDataset(_ context.Context, _ string, ds *grid.Dataset) error {
	p.saved = append(p.saved, ds)
	return p.err
}

func TestEngine_Forecast(t *testing.T) {
	idx := seedIndex(t, map[string]float64{"2020": 10, "2022": 14})
	pub := &recordingPublisher{}
	e := NewEngine(idx, Config{Entity: "london", Region: testRegion, Stride: 1000}, nil, pub)

	ds, stats, err := e.Forecast(context.Background(), 2024, "no2")
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Cells)
	assert.Equal(t, 6, stats.Emitted)
	assert.Equal(t, []string{"2020", "2022"}, stats.Years)

	assert.Equal(t, "2024", ds.Year)
	assert.Equal(t, "annual mean", ds.Metric)
	assert.Equal(t, "ppb", ds.Units)
	assert.True(t, ds.Derived)

	origin, err := ds.FindNearest(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, origin.GridID)
	assert.InDelta(t, 18.0, origin.Value.Or(0), 1e-9)

	corner, err := ds.FindNearest(2000, 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, corner.GridID)
	assert.InDelta(t, 36.0, corner.Value.Or(0), 1e-9)

	got, ok := idx.Get("london", "2024", "no2")
	require.True(t, ok)
	assert.Same(t, ds, got)
	require.Len(t, pub.saved, 1)

	// The forecast is derived and never counts as history.
	assert.Equal(t, []string{"2020", "2022"}, idx.Years("london", "no2", true))
}

func TestEngine_SkipsMissingValues(t *testing.T) {
	idx := index.New()
	for year, v := range map[string]grid.Value{"2018": grid.Some(8), "2020": grid.None(), "2022": grid.Some(12)} {
		d := grid.New(grid.Meta{Pollutant: "no2", Year: year})
		d.Append(grid.Record{GridID: 1, X: 0, Y: 0, Value: v})
		require.NoError(t, idx.Put("london", d))
	}
	e := NewEngine(idx, Config{Entity: "london", Region: grid.BBox{}, Stride: 1000}, nil, nil)

	ds, stats, err := e.Forecast(context.Background(), 2026, "no2")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Emitted)
	assert.InDelta(t, 16.0, ds.Records()[0].Value.Or(0), 1e-9)
	assert.Equal(t, "µg m-3", ds.Units)
}

func TestEngine_InsufficientHistory(t *testing.T) {
	idx := seedIndex(t, map[string]float64{"2020": 10})
	e := NewEngine(idx, Config{Entity: "london", Region: testRegion, Stride: 1000}, nil, nil)

	ds, stats, err := e.Forecast(context.Background(), 2024, "no2")
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.Equal(t, stats.Cells, stats.Insufficient)
}

func TestEngine_Errors(t *testing.T) {
	idx := seedIndex(t, map[string]float64{"2020": 10, "2022": 14})
	e := NewEngine(idx, Config{Entity: "london", Region: testRegion}, nil, nil)

	_, _, err := e.Forecast(context.Background(), 2022, "no2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has observed data")

	_, _, err = e.Forecast(context.Background(), 2030, "pm10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no historical")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = e.Forecast(ctx, 2030, "no2")
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := idx.Get("london", "2030", "no2")
	assert.False(t, ok)
}

func TestEngine_PublisherError(t *testing.T) {
	idx := seedIndex(t, map[string]float64{"2020": 10, "2022": 14})
	e := NewEngine(idx, Config{Entity: "london", Region: testRegion}, nil, &recordingPublisher{err: fmt.Errorf("disk full")})

	_, _, err := e.Forecast(context.Background(), 2024, "no2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist")
}

func TestEngine_Run(t *testing.T) {
	idx := seedIndex(t, map[string]float64{"2020": 10, "2022": 14})
	e := NewEngine(idx, Config{Entity: "london", Region: testRegion, Stride: 1000}, nil, nil)

	res, err := e.Run(context.Background(), 2024, []string{"no2", "pm10"})
	require.NoError(t, err)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, "no2", res.Stats[0].Pollutant)
	assert.Contains(t, res.Failures, "pm10")

	_, err = e.Run(context.Background(), 2024, []string{"pm10"})
	assert.Error(t, err)

	_, err = e.Run(context.Background(), 2024, nil)
	assert.Error(t, err)
}

func TestEngine_Start(t *testing.T) {
	idx := seedIndex(t, map[string]float64{"2020": 10, "2022": 14})
	e := NewEngine(idx, Config{Entity: "london", Region: testRegion, Stride: 1000}, nil, nil)

	done := make(chan struct{})
	f := e.Start(context.Background(), 2024, []string{"no2"}, func(r *Result, err error) {
		assert.NoError(t, err)
		close(done)
	})
	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	<-done
	assert.Equal(t, 2024, res.TargetYear)
}
