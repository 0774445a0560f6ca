package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load pollution maps and transit readings and summarize them",
	Long: "Ingests every recognized CSV in the configured (or given) directories,\n" +
		"clipped to the region of interest. With --save, observed datasets are\n" +
		"also written to the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		dirs, _ := cmd.Flags().GetStringSlice("dir")
		save, _ := cmd.Flags().GetBool("save")
		list, _ := cmd.Flags().GetBool("list")

		env, err := initEnv(ctx, save)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.ingest(ctx, dirs)
		if err != nil {
			return err
		}
		formatIngestResult(os.Stdout, res)
		if list {
			fmt.Fprintln(os.Stdout)
			formatIndex(os.Stdout, env.Index)
		}

		if !save {
			return nil
		}
		if env.Store == nil {
			return eris.New("ingest: --save needs store.database_url")
		}
		for _, k := range env.Index.Keys() {
			ds, ok := env.Index.Get(k.Entity, k.Year, k.Pollutant)
			if !ok || ds.Derived {
				continue
			}
			if err := env.Store.SaveDataset(ctx, k.Entity, ds); err != nil {
				return eris.Wrapf(err, "ingest: save %s", k)
			}
			zap.L().Info("saved dataset", zap.String("key", k.String()), zap.Int("records", ds.Len()))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringSlice("dir", nil, "directories to ingest (default from config)")
	ingestCmd.Flags().Bool("save", false, "persist observed datasets to the store")
	ingestCmd.Flags().Bool("list", false, "list indexed datasets after ingesting")
	rootCmd.AddCommand(ingestCmd)
}
