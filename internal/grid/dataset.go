package grid

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// ErrEmptyDataset is returned by queries that need at least one record.
var ErrEmptyDataset = eris.New("grid: empty dataset")

// Record is one grid cell measurement.
type Record struct {
	GridID int   `json:"grid_id"`
	X      int   `json:"x"`
	Y      int   `json:"y"`
	Value  Value `json:"value"`
}

// Meta describes what a dataset measures.
type Meta struct {
	Pollutant string `json:"pollutant"`
	Year      string `json:"year"`
	Metric    string `json:"metric"`
	Units     string `json:"units"`
	// Derived marks synthetic datasets such as forecasts.
	Derived bool `json:"derived"`
}

// Dataset is an ordered collection of records for one pollutant and year.
// It is built by a single owner and must not be mutated once published.
type Dataset struct {
	Meta
	records []Record
}

// New creates an empty dataset.
func New(meta Meta) *Dataset {
	return &Dataset{Meta: meta}
}

// Append adds a record.
func (d *Dataset) Append(r Record) {
	d.records = append(d.records, r)
}

// AddRecord parses and appends one row. Unparseable integers become
// Missing and an unparseable value becomes None; this never fails.
func (d *Dataset) AddRecord(gridID, x, y, value string) {
	d.Append(Record{
		GridID: ParseInt(gridID),
		X:      ParseInt(x),
		Y:      ParseInt(y),
		Value:  ParseValue(value),
	})
}

// AddRecordFields appends a raw gridcode,x,y,value row. Short rows
// degrade to sentinels.
func (d *Dataset) AddRecordFields(fields []string) {
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	d.AddRecord(get(0), get(1), get(2), get(3))
}

// Len returns the record count.
func (d *Dataset) Len() int {
	return len(d.records)
}

// IsEmpty reports whether the dataset has no records.
func (d *Dataset) IsEmpty() bool {
	return len(d.records) == 0
}

// Records returns a copy of the records in insertion order.
func (d *Dataset) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Each calls fn for every record in order until fn returns false.
func (d *Dataset) Each(fn func(Record) bool) {
	for _, r := range d.records {
		if !fn(r) {
			return
		}
	}
}

// FindNearest returns the record closest to (x, y) by Euclidean distance.
// On ties the earliest record wins.
func (d *Dataset) FindNearest(x, y int) (Record, error) {
	if len(d.records) == 0 {
		return Record{}, eris.Wrapf(ErrEmptyDataset, "grid: find nearest to (%d, %d)", x, y)
	}

	best := 0
	bestDist := distSq(d.records[0], x, y)
	for i := 1; i < len(d.records); i++ {
		if dist := distSq(d.records[i], x, y); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return d.records[best], nil
}

func distSq(r Record, x, y int) int64 {
	dx := int64(r.X) - int64(x)
	dy := int64(r.Y) - int64(y)
	return dx*dx + dy*dy
}

// FilterByBounds returns a new dataset holding the records inside b.
// Metadata is preserved.
func (d *Dataset) FilterByBounds(b BBox) *Dataset {
	out := New(d.Meta)
	for _, r := range d.records {
		if b.Contains(r.X, r.Y) {
			out.records = append(out.records, r)
		}
	}
	return out
}

// Min returns the smallest present value, +Inf if there is none.
func (d *Dataset) Min() float64 {
	m := math.Inf(1)
	for _, r := range d.records {
		if v, ok := r.Value.Get(); ok && v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest present value, -Inf if there is none.
func (d *Dataset) Max() float64 {
	m := math.Inf(-1)
	for _, r := range d.records {
		if v, ok := r.Value.Get(); ok && v > m {
			m = v
		}
	}
	return m
}

// Normalize scales v into [0, 1] against the dataset range. It reports
// false when the range is undefined or zero.
func (d *Dataset) Normalize(v float64) (float64, bool) {
	lo, hi := d.Min(), d.Max()
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) || hi == lo {
		return 0, false
	}
	return (v - lo) / (hi - lo), true
}

// Extent returns the bounding rectangle of all record coordinates.
// An empty dataset yields empty bounds.
func (d *Dataset) Extent() *geom.Bounds {
	if len(d.records) == 0 {
		return geom.NewBounds(geom.XY)
	}
	minX, minY := d.records[0].X, d.records[0].Y
	maxX, maxY := minX, minY
	for _, r := range d.records[1:] {
		minX, maxX = min(minX, r.X), max(maxX, r.X)
		minY, maxY = min(minY, r.Y), max(maxY, r.Y)
	}
	return geom.NewBounds(geom.XY).Set(float64(minX), float64(minY), float64(maxX), float64(maxY))
}

// Summary is a JSON-friendly digest of a dataset.
type Summary struct {
	Meta
	Records int      `json:"records"`
	Missing int      `json:"missing"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Extent  *BBox    `json:"extent,omitempty"`
}

// Summarize computes counts, range and extent.
func (d *Dataset) Summarize() Summary {
	s := Summary{Meta: d.Meta, Records: len(d.records)}
	for _, r := range d.records {
		if !r.Value.Valid() {
			s.Missing++
		}
	}
	if lo, hi := d.Min(), d.Max(); !math.IsInf(lo, 0) && !math.IsInf(hi, 0) {
		s.Min, s.Max = &lo, &hi
	}
	if b := d.Extent(); !b.IsEmpty() {
		s.Extent = &BBox{
			MinX: int(b.Min(0)),
			MinY: int(b.Min(1)),
			MaxX: int(b.Max(0)),
			MaxY: int(b.Max(1)),
		}
	}
	return s
}

// Metadata returns m. It is promoted to every type embedding Meta.
func (m Meta) Metadata() Meta {
	return m
}
