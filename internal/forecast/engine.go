package forecast

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/index"
	"github.com/sells-group/airgrid/internal/job"
	"github.com/sells-group/airgrid/internal/metrics"
)

// Publisher receives each forecast dataset after it is indexed.
type Publisher interface {
	SaveDataset(ctx context.Context, entity string, ds *grid.Dataset) error
}

// Config controls the forecast grid.
type Config struct {
	Entity string
	Region grid.BBox
	// Stride is the spacing between forecast cells, in grid units.
	Stride int
	Metric string
	// Units is used when no historical dataset carries units.
	Units string
	// Concurrency bounds how many pollutants run at once.
	Concurrency int
}

// Engine produces forecast datasets from the historical data in an index.
type Engine struct {
	idx       *index.Index
	cfg       Config
	metrics   *metrics.Collector
	publisher Publisher
}

// NewEngine creates an engine. metrics and publisher may be nil.
func NewEngine(idx *index.Index, cfg Config, m *metrics.Collector, pub Publisher) *Engine {
	if cfg.Stride <= 0 {
		cfg.Stride = 1000
	}
	if cfg.Metric == "" {
		cfg.Metric = "annual mean"
	}
	if cfg.Units == "" {
		cfg.Units = "µg m-3"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Engine{idx: idx, cfg: cfg, metrics: m, publisher: pub}
}

// Stats describes one pollutant's forecast.
type Stats struct {
	Pollutant    string        `json:"pollutant"`
	Years        []string      `json:"years"`
	Cells        int           `json:"cells"`
	Emitted      int           `json:"emitted"`
	NoData       int           `json:"no_data"`
	Insufficient int           `json:"insufficient"`
	Degenerate   int           `json:"degenerate"`
	Elapsed      time.Duration `json:"elapsed"`
}

type history struct {
	year int
	ds   *grid.Dataset
}

// Forecast fits every cell of the region for pollutant and publishes the
// result for targetYear into the index.
func (e *Engine) Forecast(ctx context.Context, targetYear int, pollutant string) (*grid.Dataset, *Stats, error) {
	log := zap.L().With(
		zap.String("component", "forecast.engine"),
		zap.String("pollutant", pollutant),
		zap.Int("target_year", targetYear),
	)
	start := time.Now()

	hist, err := e.history(pollutant, targetYear)
	if err != nil {
		return nil, nil, err
	}
	latest := hist[len(hist)-1].ds

	units := latest.Units
	if units == "" {
		units = e.cfg.Units
	}
	out := grid.New(grid.Meta{
		Pollutant: pollutant,
		Year:      strconv.Itoa(targetYear),
		Metric:    e.cfg.Metric,
		Units:     units,
		Derived:   true,
	})

	stats := &Stats{Pollutant: pollutant}
	for _, h := range hist {
		stats.Years = append(stats.Years, h.ds.Year)
	}

	target := float64(targetYear)
	r := e.cfg.Region
	points := make([]Point, 0, len(hist))
	for y := r.MinY; y <= r.MaxY; y += e.cfg.Stride {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrapf(err, "forecast: %s cancelled", pollutant)
		}
		for x := r.MinX; x <= r.MaxX; x += e.cfg.Stride {
			stats.Cells++

			points = points[:0]
			for _, h := range hist {
				rec, err := h.ds.FindNearest(x, y)
				if err != nil {
					continue
				}
				if v, ok := rec.Value.Get(); ok {
					points = append(points, Point{Year: float64(h.year), Value: v})
				}
			}

			if len(points) == 0 {
				stats.NoData++
				continue
			}
			line, err := Fit(points)
			switch {
			case eris.Is(err, ErrInsufficientPoints):
				stats.Insufficient++
				continue
			case eris.Is(err, ErrDegenerateRegression):
				stats.Degenerate++
				continue
			}

			gridID := grid.Missing
			if rec, err := latest.FindNearest(x, y); err == nil {
				gridID = rec.GridID
			}
			out.Append(grid.Record{GridID: gridID, X: x, Y: y, Value: grid.Some(line.At(target))})
			stats.Emitted++
		}
	}

	if err := e.idx.Put(e.cfg.Entity, out); err != nil {
		return nil, nil, eris.Wrap(err, "forecast: publish")
	}
	if e.publisher != nil {
		if err := e.publisher.SaveDataset(ctx, e.cfg.Entity, out); err != nil {
			return nil, nil, eris.Wrap(err, "forecast: persist")
		}
	}

	stats.Elapsed = time.Since(start)
	e.metrics.RecordForecastCells(pollutant, "emitted", stats.Emitted)
	e.metrics.RecordForecastCells(pollutant, "no_data", stats.NoData)
	e.metrics.RecordForecastCells(pollutant, "insufficient", stats.Insufficient)
	e.metrics.RecordForecastCells(pollutant, "degenerate", stats.Degenerate)
	e.metrics.ObserveForecast(pollutant, stats.Elapsed)

	log.Info("forecast complete",
		zap.Strings("years", stats.Years),
		zap.Int("cells", stats.Cells),
		zap.Int("emitted", stats.Emitted),
		zap.Int("skipped", stats.Cells-stats.Emitted),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return out, stats, nil
}

// history returns the non-empty observed datasets for pollutant, oldest first.
func (e *Engine) history(pollutant string, targetYear int) ([]history, error) {
	log := zap.L().With(zap.String("component", "forecast.engine"), zap.String("pollutant", pollutant))

	var hist []history
	for _, ys := range e.idx.Years(e.cfg.Entity, pollutant, true) {
		y, err := strconv.Atoi(ys)
		if err != nil {
			log.Warn("skipping non-numeric year", zap.String("year", ys))
			continue
		}
		if y == targetYear {
			return nil, eris.Errorf("forecast: %s already has observed data for %d", pollutant, targetYear)
		}
		ds, ok := e.idx.Get(e.cfg.Entity, ys, pollutant)
		if !ok || ds.IsEmpty() {
			continue
		}
		hist = append(hist, history{year: y, ds: ds})
	}
	if len(hist) == 0 {
		return nil, eris.Errorf("forecast: no historical %s data for %q", pollutant, e.cfg.Entity)
	}
	slices.SortFunc(hist, func(a, b history) int { return a.year - b.year })
	return hist, nil
}

// Result collects a multi-pollutant run.
type Result struct {
	TargetYear int               `json:"target_year"`
	Stats      []*Stats          `json:"stats"`
	Failures   map[string]string `json:"failures,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// Run forecasts every pollutant concurrently. A pollutant that fails is
// recorded in the result; Run fails only if all of them do or ctx ends.
func (e *Engine) Run(ctx context.Context, targetYear int, pollutants []string) (*Result, error) {
	if len(pollutants) == 0 {
		return nil, eris.New("forecast: no pollutants requested")
	}
	start := time.Now()
	res := &Result{TargetYear: targetYear, Failures: make(map[string]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, p := range pollutants {
		g.Go(func() error {
			_, stats, err := e.Forecast(gctx, targetYear, p)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("forecast failed", zap.String("pollutant", p), zap.Error(err))
				mu.Lock()
				res.Failures[p] = err.Error()
				mu.Unlock()
				return nil
			}
			mu.Lock()
			res.Stats = append(res.Stats, stats)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "forecast: run")
	}

	slices.SortFunc(res.Stats, func(a, b *Stats) int {
		return slices.Index(pollutants, a.Pollutant) - slices.Index(pollutants, b.Pollutant)
	})
	res.Elapsed = time.Since(start)

	if len(res.Stats) == 0 {
		return res, eris.Errorf("forecast: every pollutant failed (%d)", len(res.Failures))
	}
	return res, nil
}

// Start runs a forecast in the background.
func (e *Engine) Start(ctx context.Context, targetYear int, pollutants []string, callbacks ...func(*Result, error)) *job.Future[*Result] {
	return job.Go(ctx, "forecast", func(ctx context.Context) (*Result, error) {
		return e.Run(ctx, targetYear, pollutants)
	}, callbacks...)
}
