package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/airgrid/internal/api"
	"github.com/sells-group/airgrid/internal/index"
	"github.com/sells-group/airgrid/internal/job"
)

var servePort int

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve datasets, journeys and forecasts over HTTP",
	Long: "Starts the HTTP API immediately and ingests in the background. Dataset,\n" +
		"journey and forecast routes answer 503 until the first ingestion is done.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		// Stored forecasts go in first so an observed map for the same
		// year replaces them during ingestion.
		if n, err := env.warm(ctx); err != nil {
			zap.L().Warn("warm index from store", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("loaded stored forecasts", zap.Int("datasets", n))
		}

		env.Ingester.Start(ctx, cfg.Ingest.Dirs...)
		go logIngest(ctx, env.Index)

		jobs := job.NewTracker()
		go pruneJobs(ctx, jobs, cfg.Server.JobTTL())

		srvAPI := api.NewServer(api.Deps{
			Index:       env.Index,
			Planner:     env.Planner,
			Engine:      env.Engine,
			Jobs:        jobs,
			Metrics:     env.Metrics,
			Store:       env.Store,
			Pollutants:  cfg.Forecast.Pollutants,
			CORSOrigins: cfg.Server.CORSOrigins,
			BaseContext: ctx,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func logIngest(ctx context.Context, idx *index.Index) {
	if err := idx.WaitReady(ctx); err != nil {
		return
	}
	zap.L().Info("index ready", zap.Int("datasets", idx.Len()))
}

// pruneJobs drops finished jobs older than ttl until ctx is done.
func pruneJobs(ctx context.Context, jobs *job.Tracker, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(min(ttl, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := jobs.Prune(ttl); n > 0 {
				zap.L().Debug("pruned finished jobs", zap.Int("count", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
