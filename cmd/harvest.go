package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/harvest"
)

var (
	harvestQuery   string
	harvestFile    string
	harvestLimit   int
	harvestSizeCap int
)

var harvestCmd = &cobra.Command{
	Use:   "harvest SOURCE",
	Short: "Search one source and download its qualifying files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, err := harvest.ReadQueries(harvestFile, harvestQuery)
		if err != nil {
			return err
		}

		env, err := initHarvest(ctx, harvestSizeCap, harvestLimit, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("harvest starting",
			zap.String("source", args[0]),
			zap.Int("queries", len(queries)),
		)

		stats, err := env.Driver.RunSource(ctx, args[0], queries)
		fmt.Fprintf(cmd.OutOrStdout(), "Finished. Queries: %d, Downloaded: %d, Restricted: %d, Skipped: %d\n",
			len(queries), stats.Downloaded, stats.Restricted, stats.Skipped)
		return err
	},
}

func init() {
	harvestCmd.Flags().StringVarP(&harvestQuery, "query", "q", "", "single search query (default \""+harvest.DefaultQuery+"\")")
	harvestCmd.Flags().StringVarP(&harvestFile, "file", "f", "", "file with one query per line")
	harvestCmd.Flags().IntVarP(&harvestLimit, "limit", "n", 0, "max new datasets per query (0 = config)")
	harvestCmd.Flags().IntVarP(&harvestSizeCap, "max-size", "m", -1, "size cap in MB for non-QDA files (0 = none, default from config)")
	rootCmd.AddCommand(harvestCmd)
}
