package grid

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *Dataset {
	d := New(Meta{Pollutant: "no2", Year: "2020", Metric: "annual mean", Units: "µg m-3"})
	d.AddRecord("1", "530500", "180500", "34.2")
	d.AddRecord("2", "531500", "180500", "41.0")
	d.AddRecord("3", "530500", "181500", "-1")
	d.AddRecord("4", "600000", "100000", "12.5")
	return d
}

func TestAddRecord_Sentinels(t *testing.T) {
	d := New(Meta{})
	d.AddRecord("abc", "", "12x", "n/a")
	d.AddRecord("7", "530500.0", "180500", "  3.5 ")

	recs := d.Records()
	require.Len(t, recs, 2)

	assert.Equal(t, Missing, recs[0].GridID)
	assert.Equal(t, Missing, recs[0].X)
	assert.Equal(t, Missing, recs[0].Y)
	assert.False(t, recs[0].Value.Valid())

	assert.Equal(t, 7, recs[1].GridID)
	assert.Equal(t, 530500, recs[1].X)
	v, ok := recs[1].Value.Get()
	assert.True(t, ok)
	assert.InDelta(t, 3.5, v, 1e-9)
}

func TestParseInt_OutOfRange(t *testing.T) {
	for _, in := range []string{"1e300", "9.3e18", "-1e19", "9223372036854775807", "4294967296", "NaN", "+Inf"} {
		assert.Equal(t, Missing, ParseInt(in), in)
	}
	assert.Equal(t, 530500, ParseInt("5.305e5"))
	assert.Equal(t, -42, ParseInt("-42"))
}

func TestFindNearest_OutOfRangeCoordinate(t *testing.T) {
	d := New(Meta{})
	d.AddRecord("1", "1e300", "0", "5")
	d.AddRecord("2", "10", "0", "7")

	assert.Equal(t, Missing, d.Records()[0].X)
	r, err := d.FindNearest(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, r.GridID)
}

func TestAddRecordFields_ShortRow(t *testing.T) {
	d := New(Meta{})
	d.AddRecordFields([]string{"5", "10"})
	r := d.Records()[0]
	assert.Equal(t, 5, r.GridID)
	assert.Equal(t, 10, r.X)
	assert.Equal(t, Missing, r.Y)
	assert.False(t, r.Value.Valid())
}

func TestFindNearest(t *testing.T) {
	d := sampleDataset()

	r, err := d.FindNearest(531400, 180600)
	require.NoError(t, err)
	assert.Equal(t, 2, r.GridID)

	r, err = d.FindNearest(599000, 100000)
	require.NoError(t, err)
	assert.Equal(t, 4, r.GridID)
}

func TestFindNearest_MatchesBruteForce(t *testing.T) {
	d := sampleDataset()
	points := [][2]int{{0, 0}, {530000, 180000}, {531000, 181000}, {700000, 300000}, {530500, 181500}}

	for _, p := range points {
		got, err := d.FindNearest(p[0], p[1])
		require.NoError(t, err)

		best := math.Inf(1)
		for _, r := range d.Records() {
			best = math.Min(best, math.Hypot(float64(r.X-p[0]), float64(r.Y-p[1])))
		}
		assert.InDelta(t, best, math.Hypot(float64(got.X-p[0]), float64(got.Y-p[1])), 1e-6)
	}
}

func TestFindNearest_TieFirstWins(t *testing.T) {
	d := New(Meta{})
	d.AddRecord("1", "0", "10", "1")
	d.AddRecord("2", "10", "0", "2")
	d.AddRecord("3", "0", "10", "3")

	r, err := d.FindNearest(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.GridID)
}

func TestFindNearest_Empty(t *testing.T) {
	_, err := New(Meta{}).FindNearest(1, 1)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEmptyDataset))
}

func TestFilterByBounds(t *testing.T) {
	d := sampleDataset()
	box := BBox{MinX: 530500, MinY: 180500, MaxX: 531500, MaxY: 181500}

	f := d.FilterByBounds(box)
	assert.Equal(t, 3, f.Len())
	assert.Equal(t, d.Meta, f.Meta)
	for _, r := range f.Records() {
		assert.True(t, box.Contains(r.X, r.Y))
	}

	again := f.FilterByBounds(box)
	assert.Equal(t, f.Records(), again.Records())

	// Source dataset is untouched.
	assert.Equal(t, 4, d.Len())
}

func TestMinMax(t *testing.T) {
	d := sampleDataset()
	assert.InDelta(t, 12.5, d.Min(), 1e-9)
	assert.InDelta(t, 41.0, d.Max(), 1e-9)

	empty := New(Meta{})
	assert.True(t, math.IsInf(empty.Min(), 1))
	assert.True(t, math.IsInf(empty.Max(), -1))

	allMissing := New(Meta{})
	allMissing.AddRecord("1", "0", "0", "-1")
	assert.True(t, math.IsInf(allMissing.Min(), 1))
}

func TestNormalize(t *testing.T) {
	d := sampleDataset()
	n, ok := d.Normalize(41.0)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, n, 1e-9)

	_, ok = New(Meta{}).Normalize(1)
	assert.False(t, ok)
}

func TestExtent(t *testing.T) {
	b := sampleDataset().Extent()
	assert.InDelta(t, 530500, b.Min(0), 0)
	assert.InDelta(t, 100000, b.Min(1), 0)
	assert.InDelta(t, 600000, b.Max(0), 0)
	assert.InDelta(t, 181500, b.Max(1), 0)

	assert.True(t, New(Meta{}).Extent().IsEmpty())
}

func TestSummarize(t *testing.T) {
	s := sampleDataset().Summarize()
	assert.Equal(t, 4, s.Records)
	assert.Equal(t, 1, s.Missing)
	require.NotNil(t, s.Min)
	assert.InDelta(t, 12.5, *s.Min, 1e-9)
	require.NotNil(t, s.Extent)
	assert.Equal(t, 600000, s.Extent.MaxX)

	empty := New(Meta{Pollutant: "pm10"}).Summarize()
	assert.Nil(t, empty.Min)
	assert.Nil(t, empty.Extent)
}

func TestValue_JSON(t *testing.T) {
	b, err := json.Marshal([]Value{Some(1.5), None()})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null]`, string(b))

	var got []Value
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, []Value{Some(1.5), None()}, got)
}

func TestBBox_Validate(t *testing.T) {
	assert.NoError(t, BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}.Validate())
	assert.Error(t, BBox{MinX: 2, MaxX: 1}.Validate())
	assert.Error(t, BBox{MinY: 2, MaxY: 1}.Validate())
}
