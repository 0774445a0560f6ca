package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/airgrid/internal/forecast"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast a future year per grid cell from the historical maps",
	Long: "Fits a least-squares line per cell across the historical years of each\n" +
		"pollutant and writes the predicted map for --year into the index. When a\n" +
		"store is configured the forecast is persisted as a derived dataset.",
	Example: "  airgrid forecast --year 2030\n  airgrid forecast --year 2030 --pollutants no2,pm25 --no-save",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		year, _ := cmd.Flags().GetInt("year")
		pollutants, _ := cmd.Flags().GetStringSlice("pollutants")
		noSave, _ := cmd.Flags().GetBool("no-save")
		asJSON, _ := cmd.Flags().GetBool("json")
		if year <= 0 {
			return eris.New("forecast: --year is required")
		}
		if len(pollutants) == 0 {
			pollutants = cfg.Forecast.Pollutants
		}

		env, err := initEnv(ctx, !noSave)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.ingest(ctx, nil); err != nil {
			return err
		}
		if len(pollutants) == 0 {
			pollutants = env.Index.Pollutants(cfg.Region.Name)
		}

		res, err := env.Engine.Run(ctx, year, pollutants)
		if res != nil {
			if asJSON {
				if werr := writeJSON(os.Stdout, res); werr != nil {
					return werr
				}
			} else {
				formatForecastResult(os.Stdout, res)
			}
		}
		return err
	},
}

func formatForecastResult(out io.Writer, res *forecast.Result) {
	fmt.Fprintf(out, "Forecast for %d (%s)\n\n", res.TargetYear, res.Elapsed.Round(time.Millisecond))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POLLUTANT\tHISTORY\tCELLS\tEMITTED\tNO DATA\tINSUFFICIENT\tDEGENERATE")
	for _, s := range res.Stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			s.Pollutant, len(s.Years), s.Cells, s.Emitted, s.NoData, s.Insufficient, s.Degenerate)
	}
	w.Flush() //nolint:errcheck

	if len(res.Failures) == 0 {
		return
	}
	fmt.Fprintf(out, "\nFailed (%d):\n", len(res.Failures))
	for _, p := range slices.Sorted(maps.Keys(res.Failures)) {
		fmt.Fprintf(out, "  %s: %s\n", p, res.Failures[p])
	}
}

func init() {
	forecastCmd.Flags().Int("year", 0, "target year")
	forecastCmd.Flags().StringSlice("pollutants", nil, "pollutants to forecast (default from config)")
	forecastCmd.Flags().Bool("no-save", false, "do not persist forecasts to the store")
	forecastCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(forecastCmd)
}
