package transit

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"

	"github.com/sells-group/airgrid/internal/grid"
)

// ErrEmptyJourney is returned when aggregating over no stations.
var ErrEmptyJourney = eris.New("transit: empty journey")

// ExposureRecord holds the street-level and underground readings for one station.
type ExposureRecord struct {
	Station     string     `json:"station"`
	GridID      int        `json:"grid_id"`
	X           int        `json:"x"`
	Y           int        `json:"y"`
	Street      grid.Value `json:"street"`
	Underground grid.Value `json:"underground"`
}

// ExposureDataset maps stations to their exposure readings. Like
// grid.Dataset it is built privately and read-only once published.
type ExposureDataset struct {
	grid.Meta
	records map[string]ExposureRecord
	order   []string
}

// NewExposureDataset creates an empty transit dataset.
func NewExposureDataset(meta grid.Meta) *ExposureDataset {
	return &ExposureDataset{Meta: meta, records: make(map[string]ExposureRecord)}
}

// Add stores r under its normalized station name, replacing any earlier entry.
func (d *ExposureDataset) Add(r ExposureRecord) {
	r.Station = Normalize(r.Station)
	if _, ok := d.records[r.Station]; !ok {
		d.order = append(d.order, r.Station)
	}
	d.records[r.Station] = r
}

// AddRecord parses and stores one row.
func (d *ExposureDataset) AddRecord(station, gridID, x, y, street, underground string) {
	d.Add(ExposureRecord{
		Station:     station,
		GridID:      grid.ParseInt(gridID),
		X:           grid.ParseInt(x),
		Y:           grid.ParseInt(y),
		Street:      grid.ParseValue(street),
		Underground: grid.ParseValue(underground),
	})
}

// Lookup returns the record for station.
func (d *ExposureDataset) Lookup(station string) (ExposureRecord, bool) {
	r, ok := d.records[Normalize(station)]
	return r, ok
}

// Len returns the number of stations.
func (d *ExposureDataset) Len() int {
	return len(d.order)
}

// Stations returns station names in insertion order.
func (d *ExposureDataset) Stations() []string {
	return slices.Clone(d.order)
}

// StationExposure is one journey stop with its readings.
type StationExposure struct {
	Station     string     `json:"station"`
	Street      grid.Value `json:"street"`
	Underground grid.Value `json:"underground"`
}

// Exposure is the aggregate over a journey.
type Exposure struct {
	Stations         []StationExposure `json:"stations"`
	TotalUnderground float64           `json:"total_underground"`
	TotalStreet      float64           `json:"total_street"`
	AvgUnderground   float64           `json:"avg_underground"`
	AvgStreet        float64           `json:"avg_street"`
	// Ratio is underground over street, rounded to two places, summed
	// over the stations that have both readings.
	Ratio        float64  `json:"ratio"`
	RatioDefined bool     `json:"ratio_defined"`
	Missing      []string `json:"missing,omitempty"`
}

// Aggregate sums the readings of each journey station found in ds.
// Stations absent from ds, or lacking a reading, are reported in Missing
// and left out of the affected averages.
func Aggregate(journey []string, ds *ExposureDataset) (*Exposure, error) {
	if len(journey) == 0 {
		return nil, ErrEmptyJourney
	}
	if ds == nil {
		return nil, eris.New("transit: no exposure dataset")
	}

	out := &Exposure{Stations: make([]StationExposure, 0, len(journey))}
	var nUnder, nStreet int
	// The ratio only counts stations with both readings.
	var pairedUnder, pairedStreet float64
	for _, station := range journey {
		r, ok := ds.Lookup(station)
		if !ok {
			out.Missing = append(out.Missing, Normalize(station))
			continue
		}
		out.Stations = append(out.Stations, StationExposure{
			Station:     r.Station,
			Street:      r.Street,
			Underground: r.Underground,
		})
		if v, ok := r.Underground.Get(); ok {
			out.TotalUnderground += v
			nUnder++
		}
		if v, ok := r.Street.Get(); ok {
			out.TotalStreet += v
			nStreet++
		}
		u, uok := r.Underground.Get()
		st, sok := r.Street.Get()
		if uok && sok {
			pairedUnder += u
			pairedStreet += st
		} else {
			out.Missing = append(out.Missing, r.Station)
		}
	}

	if nUnder > 0 {
		out.AvgUnderground = round2(out.TotalUnderground / float64(nUnder))
	}
	if nStreet > 0 {
		out.AvgStreet = round2(out.TotalStreet / float64(nStreet))
	}
	if pairedStreet != 0 {
		out.Ratio = round2(pairedUnder / pairedStreet)
		out.RatioDefined = true
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
