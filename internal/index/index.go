// Package index holds every loaded dataset keyed by entity, year and pollutant.
package index

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/transit"
)

// TransitEntity is the entity name that addresses the transit slot.
const TransitEntity = "transit"

var (
	// ErrDatasetKind is returned when a dataset does not match its entity.
	ErrDatasetKind = eris.New("index: dataset kind does not match entity")
	// ErrNotReady is returned when waiting for readiness is abandoned.
	ErrNotReady = eris.New("index: not ready")
)

// Dataset is either a *grid.Dataset or a *transit.ExposureDataset.
type Dataset interface {
	Metadata() grid.Meta
}

// Key identifies a grid dataset.
type Key struct {
	Entity    string `json:"entity"`
	Year      string `json:"year"`
	Pollutant string `json:"pollutant"`
}

// MakeKey builds the canonical key. Every reader and writer goes through it.
func MakeKey(entity, year, pollutant string) Key {
	return Key{
		Entity:    strings.ToLower(strings.TrimSpace(entity)),
		Year:      strings.TrimSpace(year),
		Pollutant: strings.ToLower(strings.TrimSpace(pollutant)),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Entity, k.Year, k.Pollutant)
}

// Index is a concurrent map of published datasets. Datasets are
// replaced whole; readers never observe a partially built one.
type Index struct {
	mu      sync.RWMutex
	grids   map[Key]*grid.Dataset
	transit *transit.ExposureDataset

	readyOnce sync.Once
	ready     chan struct{}
}

// New creates an empty index.
func New() *Index {
	return &Index{
		grids: make(map[Key]*grid.Dataset),
		ready: make(chan struct{}),
	}
}

// Put publishes ds under entity, replacing any dataset with the same key.
func (x *Index) Put(entity string, ds Dataset) error {
	isTransit := strings.EqualFold(strings.TrimSpace(entity), TransitEntity)

	switch d := ds.(type) {
	case *grid.Dataset:
		if d == nil {
			return eris.New("index: nil dataset")
		}
		if isTransit {
			return eris.Wrapf(ErrDatasetKind, "index: grid dataset under %q", entity)
		}
		k := MakeKey(entity, d.Year, d.Pollutant)
		x.mu.Lock()
		x.grids[k] = d
		x.mu.Unlock()
	case *transit.ExposureDataset:
		if d == nil {
			return eris.New("index: nil dataset")
		}
		if !isTransit {
			return eris.Wrapf(ErrDatasetKind, "index: transit dataset under %q", entity)
		}
		x.mu.Lock()
		x.transit = d
		x.mu.Unlock()
	default:
		return eris.Wrapf(ErrDatasetKind, "index: unsupported dataset %T", ds)
	}
	return nil
}

// Get returns the grid dataset for the key, or false.
func (x *Index) Get(entity, year, pollutant string) (*grid.Dataset, bool) {
	k := MakeKey(entity, year, pollutant)
	x.mu.RLock()
	defer x.mu.RUnlock()
	d, ok := x.grids[k]
	return d, ok
}

// Transit returns the transit dataset, or false if none is loaded.
func (x *Index) Transit() (*transit.ExposureDataset, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.transit, x.transit != nil
}

// Len returns the number of grid datasets.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.grids)
}

// Keys returns every grid key, sorted.
func (x *Index) Keys() []Key {
	x.mu.RLock()
	keys := make([]Key, 0, len(x.grids))
	for k := range x.grids {
		keys = append(keys, k)
	}
	x.mu.RUnlock()

	slices.SortFunc(keys, func(a, b Key) int {
		return cmp.Or(
			cmp.Compare(a.Entity, b.Entity),
			cmp.Compare(a.Pollutant, b.Pollutant),
			compareYears(a.Year, b.Year),
		)
	})
	return keys
}

// Years returns the years held for entity and pollutant in ascending
// order. With historical set, derived datasets are skipped.
func (x *Index) Years(entity, pollutant string, historical bool) []string {
	want := MakeKey(entity, "", pollutant)
	x.mu.RLock()
	var years []string
	for k, d := range x.grids {
		if k.Entity != want.Entity || k.Pollutant != want.Pollutant {
			continue
		}
		if historical && d.Derived {
			continue
		}
		years = append(years, k.Year)
	}
	x.mu.RUnlock()

	slices.SortFunc(years, compareYears)
	return years
}

// Pollutants returns the distinct pollutants held for entity, sorted.
func (x *Index) Pollutants(entity string) []string {
	want := MakeKey(entity, "", "")
	seen := make(map[string]bool)
	x.mu.RLock()
	for k := range x.grids {
		if k.Entity == want.Entity {
			seen[k.Pollutant] = true
		}
	}
	x.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func compareYears(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(a, b)
}

// MarkReady signals that initial ingestion has finished. Only the first
// call has any effect.
func (x *Index) MarkReady() {
	x.readyOnce.Do(func() { close(x.ready) })
}

// Ready is closed once MarkReady has been called.
func (x *Index) Ready() <-chan struct{} {
	return x.ready
}

// IsReady reports whether MarkReady has been called.
func (x *Index) IsReady() bool {
	select {
	case <-x.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the index is ready or ctx is done.
func (x *Index) WaitReady(ctx context.Context) error {
	select {
	case <-x.ready:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ErrNotReady, ctx.Err().Error())
	}
}
