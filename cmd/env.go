package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/airgrid/internal/forecast"
	"github.com/sells-group/airgrid/internal/index"
	"github.com/sells-group/airgrid/internal/loader"
	"github.com/sells-group/airgrid/internal/metrics"
	"github.com/sells-group/airgrid/internal/store"
	"github.com/sells-group/airgrid/internal/transit"
)

// appEnv holds everything the ingest/query/forecast/serve commands share.
type appEnv struct {
	Index    *index.Index
	Ingester *index.Ingester
	Network  *transit.Network
	Planner  *transit.Planner
	Engine   *forecast.Engine
	Metrics  *metrics.Collector
	Store    store.Store // nil when persistence is disabled
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv wires the index, network and forecast engine. The store is
// opened and migrated only when withStore is set and a database URL is
// configured. Callers should defer env.Close().
func initEnv(ctx context.Context, withStore bool) (*appEnv, error) {
	network, err := transit.DefaultNetwork(cfg.Transit.LinesFile)
	if err != nil {
		return nil, eris.Wrap(err, "load transit network")
	}

	env := &appEnv{
		Index:   index.New(),
		Network: network,
		Metrics: metrics.NewCollector("airgrid"),
	}

	if withStore && strings.TrimSpace(cfg.Store.DatabaseURL) != "" {
		st, err := store.New(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		env.Store = st
	}

	env.Ingester = index.NewIngester(env.Index, loader.NewCSV(cfg.Region.Name), cfg.Region.BBox(),
		index.WithConcurrency(cfg.Ingest.Concurrency),
		index.WithMetrics(env.Metrics),
	)
	env.Planner = transit.NewPlanner(network, env.Index)

	var pub forecast.Publisher
	if env.Store != nil {
		pub = env.Store
	}
	env.Engine = forecast.NewEngine(env.Index, forecast.Config{
		Entity: cfg.Region.Name,
		Region: cfg.Region.BBox(),
		Stride: cfg.Forecast.Stride,
		Metric: cfg.Forecast.Metric,
		Units:  cfg.Forecast.Units,
	}, env.Metrics, pub)

	return env, nil
}

// ingest loads every configured directory and waits for it to finish.
func (e *appEnv) ingest(ctx context.Context, dirs []string) (*index.IngestResult, error) {
	if len(dirs) == 0 {
		dirs = cfg.Ingest.Dirs
	}
	res, err := e.Ingester.Start(ctx, dirs...).Wait(ctx)
	if err != nil {
		return res, eris.Wrap(err, "ingest")
	}
	zap.L().Info("ingestion complete",
		zap.Int("files", res.Files),
		zap.Int("datasets", res.Datasets),
		zap.Int("records", res.Records),
		zap.Int("filtered", res.Filtered),
		zap.Int("failures", len(res.Failures)),
	)
	return res, nil
}

// warm loads stored derived datasets into the index so forecasts from
// earlier runs are queryable again. Observed datasets always come from
// the source files.
func (e *appEnv) warm(ctx context.Context) (int, error) {
	if e.Store == nil {
		return 0, nil
	}
	infos, err := e.Store.ListDatasets(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "list stored datasets")
	}
	n := 0
	for _, info := range infos {
		if !info.Derived {
			continue
		}
		if _, ok := e.Index.Get(info.Entity, info.Year, info.Pollutant); ok {
			continue
		}
		ds, err := e.Store.LoadDataset(ctx, info.Entity, info.Year, info.Pollutant)
		if err != nil {
			return n, eris.Wrapf(err, "load stored %s/%s/%s", info.Entity, info.Year, info.Pollutant)
		}
		if err := e.Index.Put(info.Entity, ds); err != nil {
			return n, err
		}
		n++
	}
	e.Metrics.SetIndexDatasets(e.Index.Len())
	return n, nil
}
