package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Look up the grid cell closest to a point",
	Example: "  airgrid nearest --year 2020 --pollutant no2 --x 529090 --y 179645\n" +
		"  airgrid nearest --year 2030 --pollutant pm25 --x 529090 --y 179645 --json",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		entity, _ := cmd.Flags().GetString("entity")
		year, _ := cmd.Flags().GetString("year")
		pollutant, _ := cmd.Flags().GetString("pollutant")
		x, _ := cmd.Flags().GetInt("x")
		y, _ := cmd.Flags().GetInt("y")
		asJSON, _ := cmd.Flags().GetBool("json")
		if entity == "" {
			entity = cfg.Region.Name
		}

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.ingest(ctx, nil); err != nil {
			return err
		}
		if _, err := env.warm(ctx); err != nil {
			return err
		}

		ds, ok := env.Index.Get(entity, year, pollutant)
		if !ok {
			return eris.Errorf("nearest: no dataset for %s/%s/%s", entity, year, pollutant)
		}
		rec, err := ds.FindNearest(x, y)
		if err != nil {
			return eris.Wrap(err, "nearest")
		}

		if asJSON {
			out := map[string]any{"dataset": ds.Meta, "record": rec}
			if v, ok := rec.Value.Get(); ok {
				if n, ok := ds.Normalize(v); ok {
					out["normalized"] = n
				}
			}
			return writeJSON(os.Stdout, out)
		}

		fmt.Fprintf(os.Stdout, "Grid cell: %d (%d, %d)\n", rec.GridID, rec.X, rec.Y)
		fmt.Fprintf(os.Stdout, "%s %s: %s %s\n", ds.Pollutant, ds.Year, formatValue(rec.Value), ds.Units)
		return nil
	},
}

func init() {
	nearestCmd.Flags().String("entity", "", "dataset entity (default: region name)")
	nearestCmd.Flags().String("year", "", "dataset year")
	nearestCmd.Flags().String("pollutant", "", "pollutant (no2, nox, pm10, pm25)")
	nearestCmd.Flags().Int("x", 0, "easting")
	nearestCmd.Flags().Int("y", 0, "northing")
	nearestCmd.Flags().Bool("json", false, "print JSON")
	_ = nearestCmd.MarkFlagRequired("year")
	_ = nearestCmd.MarkFlagRequired("pollutant")
	_ = nearestCmd.MarkFlagRequired("x")
	_ = nearestCmd.MarkFlagRequired("y")
	rootCmd.AddCommand(nearestCmd)
}
