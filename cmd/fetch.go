package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sells-group/airgrid/internal/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Download source maps into the ingest directory",
	Long: "Downloads each URL (or fetch.sources from config) into fetch.dest_dir,\n" +
		"skipping files whose ETag is unchanged and extracting ZIP archives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sources := args
		if len(sources) == 0 {
			sources = cfg.Fetch.Sources
		}
		if len(sources) == 0 {
			return eris.New("fetch: no sources given and fetch.sources is empty")
		}
		dest, _ := cmd.Flags().GetString("dest")
		if dest == "" {
			dest = cfg.Fetch.DestDir
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.Fetch.UserAgent,
			Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries:  cfg.Fetch.MaxRetries,
			DefaultRate: rate.Limit(cfg.Fetch.RatePerSec),
		})

		results, err := fetcher.Sync(ctx, f, sources, dest)
		formatSyncResults(os.Stdout, results)
		return err
	},
}

func formatSyncResults(out io.Writer, results []fetcher.SyncResult) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tPATH\tCHANGED\tFILES")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", r.URL, r.Path, r.Changed, len(r.Files))
	}
	w.Flush() //nolint:errcheck
}

func init() {
	fetchCmd.Flags().String("dest", "", "download directory (default from config)")
	rootCmd.AddCommand(fetchCmd)
}
