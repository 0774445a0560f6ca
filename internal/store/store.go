// Package store persists spatial datasets so derived forecasts survive
// restarts.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/index"
)

// ErrNotFound is returned when no dataset matches the requested key.
var ErrNotFound = eris.New("store: dataset not found")

// DatasetInfo describes a stored dataset without its records.
type DatasetInfo struct {
	Entity    string    `json:"entity"`
	Year      string    `json:"year"`
	Pollutant string    `json:"pollutant"`
	Metric    string    `json:"metric"`
	Units     string    `json:"units"`
	Derived   bool      `json:"derived"`
	Records   int       `json:"records"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines dataset persistence.
type Store interface {
	// SaveDataset replaces any dataset stored under the same
	// (entity, year, pollutant) key.
	SaveDataset(ctx context.Context, entity string, ds *grid.Dataset) error
	LoadDataset(ctx context.Context, entity, year, pollutant string) (*grid.Dataset, error)
	ListDatasets(ctx context.Context) ([]DatasetInfo, error)

	Migrate(ctx context.Context) error
	Close() error
}

// New opens the store for driver ("sqlite" or "postgres") and runs its
// migration.
func New(ctx context.Context, driver, databaseURL string, pool *PoolConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(driver) {
	case "", "sqlite":
		s, err = NewSQLite(databaseURL)
	case "postgres", "postgresql":
		s, err = NewPostgres(ctx, databaseURL, pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func key(entity, year, pollutant string) index.Key {
	return index.MakeKey(entity, year, pollutant)
}

func validate(entity string, ds *grid.Dataset) error {
	if ds == nil {
		return eris.New("store: nil dataset")
	}
	if strings.TrimSpace(entity) == "" || ds.Year == "" || ds.Pollutant == "" {
		return eris.Errorf("store: dataset needs entity, year and pollutant (got %q/%q/%q)", entity, ds.Year, ds.Pollutant)
	}
	return nil
}
