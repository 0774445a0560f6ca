// Package loader reads background-map and station exposure CSV files
// into datasets for the index.
package loader

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/airgrid/internal/fetcher"
	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/index"
	"github.com/sells-group/airgrid/internal/transit"
)

// ErrUnrecognized is returned for files whose names match no known layout.
var ErrUnrecognized = eris.New("loader: unrecognized file name")

var (
	gridName    = regexp.MustCompile(`(?i)^map(no2|nox|pm10|pm25)(\d{4}).*\.csv$`)
	transitName = regexp.MustCompile(`(?i)^transit(?:[_-]([a-z0-9]+))?(?:[_-](\d{4}))?\.csv$`)
)

// FileKind classifies a CSV by its name.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindGrid
	KindTransit
)

// Classify returns the file kind with the pollutant and year encoded in
// the name. Either may be empty for transit files.
func Classify(path string) (kind FileKind, pollutant, year string) {
	base := filepath.Base(path)
	if m := gridName.FindStringSubmatch(base); m != nil {
		return KindGrid, strings.ToLower(m[1]), m[2]
	}
	if m := transitName.FindStringSubmatch(base); m != nil {
		pollutant, year = strings.ToLower(m[1]), m[2]
		if year == "" && isYear(pollutant) {
			pollutant, year = "", pollutant
		}
		return KindTransit, pollutant, year
	}
	return KindUnknown, "", ""
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// CSV implements index.Source for a directory of CSV files.
type CSV struct {
	entity string
	log    *zap.Logger
}

// NewCSV returns a loader that files every grid dataset under entity.
func NewCSV(entity string) *CSV {
	return &CSV{
		entity: entity,
		log:    zap.L().With(zap.String("component", "loader.csv")),
	}
}

// Discover lists recognized CSV files in dir, sorted by name.
func (c *CSV) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: read dir %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		if kind, _, _ := Classify(e.Name()); kind == KindUnknown {
			c.log.Debug("skipping unrecognized csv", zap.String("file", e.Name()))
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// Load parses one file.
func (c *CSV) Load(ctx context.Context, path string) (*index.Loaded, error) {
	kind, pollutant, year := Classify(path)
	switch kind {
	case KindGrid:
		ds, err := LoadGrid(ctx, path, grid.Meta{Pollutant: pollutant, Year: year})
		if err != nil {
			return nil, err
		}
		return &index.Loaded{Entity: c.entity, Dataset: ds}, nil
	case KindTransit:
		ds, err := LoadTransit(ctx, path, grid.Meta{Pollutant: pollutant, Year: year})
		if err != nil {
			return nil, err
		}
		return &index.Loaded{Entity: index.TransitEntity, Dataset: ds}, nil
	default:
		return nil, eris.Wrapf(ErrUnrecognized, "loader: %s", filepath.Base(path))
	}
}

// LoadGrid reads a gridcode,x,y,value file. Rows before the first one
// with an integer gridcode are header rows; a header field mentioning
// "m-3" sets the units and one mentioning "annual mean" sets the metric.
func LoadGrid(ctx context.Context, path string, meta grid.Meta) (*grid.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "loader: open")
	}
	defer f.Close() //nolint:errcheck

	ds := grid.New(meta)
	inData := false
	rows, errs := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{TrimSpace: true, SkipBlank: true})
	for row := range rows {
		if !inData {
			if _, err := strconv.Atoi(row[0]); err != nil {
				readHeader(&ds.Meta, row)
				continue
			}
			inData = true
		}
		ds.AddRecordFields(row)
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", filepath.Base(path))
	}
	return ds, nil
}

func readHeader(meta *grid.Meta, row []string) {
	for _, field := range row {
		lower := strings.ToLower(field)
		switch {
		case meta.Units == "" && strings.Contains(lower, "m-3"):
			meta.Units = unitsFrom(field)
		case meta.Metric == "" && strings.Contains(lower, "annual mean"):
			meta.Metric = "annual mean"
		}
	}
}

// unitsFrom picks the token containing m-3 plus its prefix, so
// "Units: ug m-3" yields "ug m-3".
func unitsFrom(field string) string {
	words := strings.Fields(field)
	for i, w := range words {
		if strings.Contains(strings.ToLower(w), "m-3") {
			if i > 0 {
				return words[i-1] + " " + w
			}
			return w
		}
	}
	return strings.TrimSpace(field)
}

// LoadTransit reads a station,gridcode,x,y,street,underground file. The
// header row is required; columns are matched by name.
func LoadTransit(ctx context.Context, path string, meta grid.Meta) (*transit.ExposureDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "loader: open")
	}
	defer f.Close() //nolint:errcheck

	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
		SkipBlank: true,
	})

	ds := transit.NewExposureDataset(meta)
	var cols fetcher.ColumnIndex
	for row := range rows {
		if cols == nil {
			cols = fetcher.NewColumnIndex(<-headerCh)
			if !cols.Has("station") {
				go drain(rows)
				return nil, eris.Errorf("loader: %s has no station column", filepath.Base(path))
			}
		}
		ds.AddRecord(
			cols.Get(row, "station"),
			cols.Get(row, "gridcode", "grid_id"),
			cols.Get(row, "x"),
			cols.Get(row, "y"),
			cols.Get(row, "street"),
			cols.Get(row, "underground"),
		)
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrapf(err, "loader: read %s", filepath.Base(path))
	}
	if cols == nil {
		// No data rows. The header, if any, was sent before rows closed.
		select {
		case h := <-headerCh:
			cols = fetcher.NewColumnIndex(h)
		default:
			return nil, eris.Errorf("loader: %s has no header row", filepath.Base(path))
		}
		if !cols.Has("station") {
			return nil, eris.Errorf("loader: %s has no station column", filepath.Base(path))
		}
	}
	return ds, nil
}

func drain(rows <-chan []string) {
	for range rows {
	}
}
