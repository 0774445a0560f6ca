package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/airgrid/internal/grid"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	entity       TEXT NOT NULL,
	year         TEXT NOT NULL,
	pollutant    TEXT NOT NULL,
	metric       TEXT NOT NULL DEFAULT '',
	units        TEXT NOT NULL DEFAULT '',
	derived      INTEGER NOT NULL DEFAULT 0,
	record_count INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (entity, year, pollutant)
);

CREATE TABLE IF NOT EXISTS records (
	entity    TEXT NOT NULL,
	year      TEXT NOT NULL,
	pollutant TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	grid_id   INTEGER NOT NULL,
	x         INTEGER NOT NULL,
	y         INTEGER NOT NULL,
	value     REAL,
	PRIMARY KEY (entity, year, pollutant, seq),
	FOREIGN KEY (entity, year, pollutant) REFERENCES datasets(entity, year, pollutant) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_datasets_derived ON datasets(derived);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveDataset writes ds and its records in one transaction.
func (s *SQLiteStore) SaveDataset(ctx context.Context, entity string, ds *grid.Dataset) error {
	if err := validate(entity, ds); err != nil {
		return err
	}
	k := key(entity, ds.Year, ds.Pollutant)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE entity = ? AND year = ? AND pollutant = ?`,
		k.Entity, k.Year, k.Pollutant,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear records %s", k)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (entity, year, pollutant, metric, units, derived, record_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (entity, year, pollutant) DO UPDATE SET
		   metric = excluded.metric, units = excluded.units, derived = excluded.derived,
		   record_count = excluded.record_count, updated_at = excluded.updated_at`,
		k.Entity, k.Year, k.Pollutant, ds.Metric, ds.Units, ds.Derived, ds.Len(), time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: upsert dataset %s", k)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (entity, year, pollutant, seq, grid_id, x, y, value) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert record")
	}
	defer stmt.Close() //nolint:errcheck

	seq := 0
	var insertErr error
	ds.Each(func(r grid.Record) bool {
		var v sql.NullFloat64
		v.Float64, v.Valid = r.Value.Get()
		if _, insertErr = stmt.ExecContext(ctx, k.Entity, k.Year, k.Pollutant, seq, r.GridID, r.X, r.Y, v); insertErr != nil {
			return false
		}
		seq++
		return true
	})
	if insertErr != nil {
		return eris.Wrapf(insertErr, "sqlite: insert record %d of %s", seq, k)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// LoadDataset reads one dataset with its records in insertion order.
func (s *SQLiteStore) LoadDataset(ctx context.Context, entity, year, pollutant string) (*grid.Dataset, error) {
	k := key(entity, year, pollutant)

	meta := grid.Meta{Year: k.Year, Pollutant: k.Pollutant}
	err := s.db.QueryRowContext(ctx,
		`SELECT metric, units, derived FROM datasets WHERE entity = ? AND year = ? AND pollutant = ?`,
		k.Entity, k.Year, k.Pollutant,
	).Scan(&meta.Metric, &meta.Units, &meta.Derived)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: %s", k)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get dataset %s", k)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT grid_id, x, y, value FROM records WHERE entity = ? AND year = ? AND pollutant = ? ORDER BY seq`,
		k.Entity, k.Year, k.Pollutant,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query records %s", k)
	}
	defer rows.Close() //nolint:errcheck

	ds := grid.New(meta)
	for rows.Next() {
		var r grid.Record
		var v sql.NullFloat64
		if err := rows.Scan(&r.GridID, &r.X, &r.Y, &v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		if v.Valid {
			r.Value = grid.Some(v.Float64)
		}
		ds.Append(r)
	}
	return ds, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

// ListDatasets returns every stored dataset ordered by key.
func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity, year, pollutant, metric, units, derived, record_count, updated_at
		 FROM datasets ORDER BY entity, pollutant, year`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list datasets")
	}
	defer rows.Close() //nolint:errcheck

	var out []DatasetInfo
	for rows.Next() {
		var d DatasetInfo
		if err := rows.Scan(&d.Entity, &d.Year, &d.Pollutant, &d.Metric, &d.Units, &d.Derived, &d.Records, &d.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dataset")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate datasets")
}
