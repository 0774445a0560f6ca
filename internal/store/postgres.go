package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/airgrid/internal/db"
	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/resilience"
)

// Schema holds every airgrid table.
const Schema = "airgrid"

// SRID is the British National Grid, the coordinate system of the
// background-map easting/northing values.
const SRID = 27700

var recordColumns = []string{"entity", "year", "pollutant", "seq", "grid_id", "x", "y", "value", "geom"}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := ping(ctx, pool, pingRetry); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// pingRetry covers a database that is still starting up.
var pingRetry = resilience.RetryConfig{
	MaxAttempts:    5,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Multiplier:     2,
	JitterFraction: 0.1,
}

// ping retries refused and reset connections.
func ping(ctx context.Context, pool db.Pool, cfg resilience.RetryConfig) error {
	if err := resilience.Do(ctx, cfg, pool.Ping); err != nil {
		return eris.Wrap(err, "postgres: ping")
	}
	return nil
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS airgrid;

CREATE TABLE IF NOT EXISTS airgrid.datasets (
	entity       TEXT NOT NULL,
	year         TEXT NOT NULL,
	pollutant    TEXT NOT NULL,
	metric       TEXT NOT NULL DEFAULT '',
	units        TEXT NOT NULL DEFAULT '',
	derived      BOOLEAN NOT NULL DEFAULT false,
	record_count INTEGER NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity, year, pollutant)
);

CREATE TABLE IF NOT EXISTS airgrid.records (
	entity    TEXT NOT NULL,
	year      TEXT NOT NULL,
	pollutant TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	grid_id   INTEGER NOT NULL,
	x         INTEGER NOT NULL,
	y         INTEGER NOT NULL,
	value     DOUBLE PRECISION,
	geom      geometry(Point, 27700),
	PRIMARY KEY (entity, year, pollutant, seq),
	FOREIGN KEY (entity, year, pollutant) REFERENCES airgrid.datasets ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_records_geom ON airgrid.records USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_datasets_derived ON airgrid.datasets (derived);
`

// Migrate creates the schema and tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveDataset replaces the stored dataset in one transaction. Records
// are bulk loaded with COPY.
func (s *PostgresStore) SaveDataset(ctx context.Context, entity string, ds *grid.Dataset) error {
	if err := validate(entity, ds); err != nil {
		return err
	}
	k := key(entity, ds.Year, ds.Pollutant)

	rows := make([][]any, 0, ds.Len())
	var encErr error
	ds.Each(func(r grid.Record) bool {
		pt, err := encodePoint(r.X, r.Y)
		if err != nil {
			encErr = err
			return false
		}
		var v any
		if f, ok := r.Value.Get(); ok {
			v = f
		}
		rows = append(rows, []any{k.Entity, k.Year, k.Pollutant, len(rows), r.GridID, r.X, r.Y, v, pt})
		return true
	})
	if encErr != nil {
		return encErr
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO airgrid.datasets (entity, year, pollutant, metric, units, derived, record_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (entity, year, pollutant) DO UPDATE SET
		   metric = EXCLUDED.metric, units = EXCLUDED.units, derived = EXCLUDED.derived,
		   record_count = EXCLUDED.record_count, updated_at = EXCLUDED.updated_at`,
		k.Entity, k.Year, k.Pollutant, ds.Metric, ds.Units, ds.Derived, ds.Len(),
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert dataset %s", k)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM airgrid.records WHERE entity = $1 AND year = $2 AND pollutant = $3`,
		k.Entity, k.Year, k.Pollutant,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear records %s", k)
	}

	if _, err := db.CopyFromSchema(ctx, tx, Schema, "records", recordColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy records %s", k)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// encodePoint returns the EWKB form of an easting/northing pair.
func encodePoint(x, y int) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{float64(x), float64(y)}).SetSRID(SRID)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

// LoadDataset reads one dataset with its records in insertion order.
func (s *PostgresStore) LoadDataset(ctx context.Context, entity, year, pollutant string) (*grid.Dataset, error) {
	k := key(entity, year, pollutant)

	meta := grid.Meta{Year: k.Year, Pollutant: k.Pollutant}
	err := s.pool.QueryRow(ctx,
		`SELECT metric, units, derived FROM airgrid.datasets WHERE entity = $1 AND year = $2 AND pollutant = $3`,
		k.Entity, k.Year, k.Pollutant,
	).Scan(&meta.Metric, &meta.Units, &meta.Derived)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: %s", k)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get dataset %s", k)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT grid_id, x, y, COALESCE(value, 0), value IS NOT NULL
		 FROM airgrid.records WHERE entity = $1 AND year = $2 AND pollutant = $3 ORDER BY seq`,
		k.Entity, k.Year, k.Pollutant,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query records %s", k)
	}
	defer rows.Close()

	ds := grid.New(meta)
	for rows.Next() {
		var r grid.Record
		var v float64
		var ok bool
		if err := rows.Scan(&r.GridID, &r.X, &r.Y, &v, &ok); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		if ok {
			r.Value = grid.Some(v)
		}
		ds.Append(r)
	}
	return ds, eris.Wrap(rows.Err(), "postgres: iterate records")
}

// ListDatasets returns every stored dataset ordered by key.
func (s *PostgresStore) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT entity, year, pollutant, metric, units, derived, record_count, updated_at
		 FROM airgrid.datasets ORDER BY entity, pollutant, year`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list datasets")
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var d DatasetInfo
		if err := rows.Scan(&d.Entity, &d.Year, &d.Pollutant, &d.Metric, &d.Units, &d.Derived, &d.Records, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate datasets")
}
