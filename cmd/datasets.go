package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List datasets held in the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()
		if env.Store == nil {
			return eris.New("datasets: no store configured (store.database_url)")
		}

		infos, err := env.Store.ListDatasets(ctx)
		if err != nil {
			return eris.Wrap(err, "datasets")
		}
		if len(infos) == 0 {
			fmt.Fprintln(os.Stderr, "No stored datasets.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, infos)
		}
		formatStored(os.Stdout, infos)
		return nil
	},
}

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "List the transit lines and their termini",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initEnv(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			type lineJSON struct {
				Name     string   `json:"name"`
				Stations []string `json:"stations"`
			}
			var out []lineJSON
			for _, l := range env.Network.Lines() {
				out = append(out, lineJSON{Name: l.Name, Stations: l.Stations()})
			}
			return writeJSON(os.Stdout, out)
		}
		formatLines(os.Stdout, env.Network.Lines())
		return nil
	},
}

func init() {
	datasetsCmd.Flags().Bool("json", false, "print JSON")
	linesCmd.Flags().Bool("json", false, "print JSON")
	rootCmd.AddCommand(datasetsCmd, linesCmd)
}
