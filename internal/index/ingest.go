package index

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/airgrid/internal/grid"
	"github.com/sells-group/airgrid/internal/job"
	"github.com/sells-group/airgrid/internal/metrics"
	"github.com/sells-group/airgrid/internal/transit"
)

// Loaded is one dataset produced from one source file.
type Loaded struct {
	Entity  string
	Dataset Dataset
}

// Source discovers and parses input files.
type Source interface {
	// Discover lists the loadable files in dir.
	Discover(dir string) ([]string, error)
	// Load parses one file into a privately owned dataset.
	Load(ctx context.Context, path string) (*Loaded, error)
}

// FileError records a file that could not be ingested.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// IngestResult summarizes one or more ingestion runs.
type IngestResult struct {
	Files    int           `json:"files"`
	Datasets int           `json:"datasets"`
	Records  int           `json:"records"`
	Filtered int           `json:"filtered"`
	Failures []FileError   `json:"failures,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

func (r *IngestResult) merge(o *IngestResult) {
	r.Files += o.Files
	r.Datasets += o.Datasets
	r.Records += o.Records
	r.Filtered += o.Filtered
	r.Failures = append(r.Failures, o.Failures...)
	r.Elapsed += o.Elapsed
}

// Ingester loads directories into an index.
type Ingester struct {
	idx         *Index
	src         Source
	region      grid.BBox
	concurrency int
	metrics     *metrics.Collector
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithConcurrency bounds the number of files parsed at once.
func WithConcurrency(n int) IngesterOption {
	return func(i *Ingester) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithMetrics records ingestion metrics on c.
func WithMetrics(c *metrics.Collector) IngesterOption {
	return func(i *Ingester) { i.metrics = c }
}

// NewIngester creates an ingester that clips grid datasets to region.
func NewIngester(idx *Index, src Source, region grid.BBox, opts ...IngesterOption) *Ingester {
	i := &Ingester{idx: idx, src: src, region: region, concurrency: 4}
	for _, o := range opts {
		o(i)
	}
	return i
}

// IngestDirectory loads every file the source discovers in dir. A file
// that fails is recorded in the result and does not stop the others.
func (i *Ingester) IngestDirectory(ctx context.Context, dir string) (*IngestResult, error) {
	log := zap.L().With(zap.String("component", "index.ingest"), zap.String("dir", dir))
	start := time.Now()

	paths, err := i.src.Discover(dir)
	if err != nil {
		i.metrics.RecordIngestError("discover")
		return nil, eris.Wrapf(err, "index: discover %s", dir)
	}
	log.Info("discovered files", zap.Int("count", len(paths)))

	res := &IngestResult{Files: len(paths)}
	var datasets, records, filtered atomic.Int64
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			flog := log.With(zap.String("file", path))

			n, dropped, err := i.ingestFile(gctx, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				flog.Warn("ingest file failed", zap.Error(err))
				i.metrics.RecordIngestFile("failed")
				i.metrics.RecordIngestError("load")
				mu.Lock()
				res.Failures = append(res.Failures, FileError{Path: path, Error: err.Error()})
				mu.Unlock()
				return nil
			}

			datasets.Add(1)
			records.Add(int64(n))
			filtered.Add(int64(dropped))
			i.metrics.RecordIngestFile("ok")
			flog.Debug("file ingested", zap.Int("records", n), zap.Int("filtered", dropped))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "index: ingest %s", dir)
	}

	res.Datasets = int(datasets.Load())
	res.Records = int(records.Load())
	res.Filtered = int(filtered.Load())
	res.Elapsed = time.Since(start)

	i.metrics.ObserveIngest(res.Elapsed)
	i.metrics.SetIndexDatasets(i.idx.Len())

	log.Info("ingest complete",
		zap.Int("files", res.Files),
		zap.Int("datasets", res.Datasets),
		zap.Int("records", res.Records),
		zap.Int("failed", len(res.Failures)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// ingestFile loads, clips and publishes one file. It returns the number
// of records published and the number dropped by the region filter.
func (i *Ingester) ingestFile(ctx context.Context, path string) (int, int, error) {
	loaded, err := i.src.Load(ctx, path)
	if err != nil {
		return 0, 0, err
	}

	switch d := loaded.Dataset.(type) {
	case *grid.Dataset:
		clipped := d.FilterByBounds(i.region)
		if err := i.idx.Put(loaded.Entity, clipped); err != nil {
			return 0, 0, err
		}
		i.metrics.RecordIngestRecords(d.Pollutant, clipped.Len())
		return clipped.Len(), d.Len() - clipped.Len(), nil
	case *transit.ExposureDataset:
		if err := i.idx.Put(TransitEntity, d); err != nil {
			return 0, 0, err
		}
		return d.Len(), 0, nil
	default:
		return 0, 0, eris.Wrapf(ErrDatasetKind, "index: %s produced %T", path, loaded.Dataset)
	}
}

// Start ingests dirs in the background. The index is marked ready once
// every directory has been attempted, whether or not any failed.
func (i *Ingester) Start(ctx context.Context, dirs ...string) *job.Future[*IngestResult] {
	return job.Go(ctx, "ingest", func(ctx context.Context) (*IngestResult, error) {
		total := &IngestResult{}
		var errs []error
		for _, dir := range dirs {
			res, err := i.IngestDirectory(ctx, dir)
			if err != nil {
				if ctx.Err() != nil {
					return total, err
				}
				total.Failures = append(total.Failures, FileError{Path: dir, Error: err.Error()})
				errs = append(errs, err)
				continue
			}
			total.merge(res)
		}
		if len(dirs) > 0 && len(errs) == len(dirs) {
			return total, eris.Wrap(errs[0], "index: every ingest directory failed")
		}
		return total, nil
	}, func(*IngestResult, error) {
		i.idx.MarkReady()
	})
}
