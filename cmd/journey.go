package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/airgrid/internal/transit"
)

var journeyCmd = &cobra.Command{
	Use:     "journey <from> <to>",
	Short:   "Plan a transit journey and total its exposure",
	Example: `  airgrid journey "Oxford Circus" "Bond Street"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")
		skipExposure, _ := cmd.Flags().GetBool("no-exposure")

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if !skipExposure {
			if _, err := env.ingest(ctx, nil); err != nil {
				return err
			}
		}

		plan, err := env.Planner.Plan(args[0], args[1])
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(os.Stdout, plan)
		}
		formatPlan(os.Stdout, plan)
		return nil
	},
}

func formatPlan(out io.Writer, plan *transit.Plan) {
	fmt.Fprintf(out, "Route: %s\n", strings.Join(plan.Stations, " -> "))
	fmt.Fprintf(out, "Lines: %s\n", strings.Join(plan.Lines, ", "))
	if plan.Hub != "" {
		fmt.Fprintf(out, "Change at: %s\n", plan.Hub)
	}
	if plan.Exposure == nil {
		fmt.Fprintln(out, "\nNo exposure readings loaded.")
		return
	}

	e := plan.Exposure
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATION\tSTREET\tUNDERGROUND")
	for _, s := range e.Stations {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Station, formatValue(s.Street), formatValue(s.Underground))
	}
	w.Flush() //nolint:errcheck

	fmt.Fprintf(out, "\nTotal: underground %.2f, street %.2f\n", e.TotalUnderground, e.TotalStreet)
	fmt.Fprintf(out, "Average: underground %.2f, street %.2f\n", e.AvgUnderground, e.AvgStreet)
	if e.RatioDefined {
		fmt.Fprintf(out, "Underground/street: %.2fx\n", e.Ratio)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(out, "No readings for: %s\n", strings.Join(e.Missing, ", "))
	}
}

func init() {
	journeyCmd.Flags().Bool("json", false, "print JSON")
	journeyCmd.Flags().Bool("no-exposure", false, "plan the route without loading exposure readings")
	rootCmd.AddCommand(journeyCmd)
}
