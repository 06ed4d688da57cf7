package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/harvest"
)

var (
	collectFile    string
	collectQuery   string
	collectLimit   int
	collectRetries int
	collectSizeCap int
	collectSources []string
)

var collectAllCmd = &cobra.Command{
	Use:   "collect-all",
	Short: "Harvest every registered source, retrying failed ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		path, err := queriesPath(collectFile, cfg.Paths.Resolve(cfg.Paths.Queries))
		if err != nil {
			return err
		}
		queries, err := harvest.ReadQueries(path, collectQuery)
		if err != nil {
			return err
		}

		env, err := initHarvest(ctx, collectSizeCap, collectLimit, collectSources)
		if err != nil {
			return err
		}
		defer env.Close()

		retries := collectRetries
		if retries < 0 {
			retries = cfg.Harvest.Retries
		}

		zap.L().Info("collect-all starting",
			zap.Int("sources", env.Registry.Len()),
			zap.Int("queries", len(queries)),
			zap.Int("retries", retries),
		)

		report, err := env.Driver.RunAll(ctx, queries, retries)
		if report != nil {
			formatReport(cmd.OutOrStdout(), report)
		}
		return err
	},
}

// queriesPath returns the explicit file, else the configured default when it
// exists, else "".
func queriesPath(explicit, fallback string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if fallback == "" {
		return "", nil
	}
	if _, err := os.Stat(fallback); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return fallback, nil
}

func formatReport(w io.Writer, r *harvest.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Status", "Attempts", "Downloaded", "Restricted", "Skipped", "Error"})
	for _, res := range r.Results {
		t.AppendRow(table.Row{
			res.Key, res.Status, res.Attempts,
			res.Stats.Downloaded, res.Stats.Restricted, res.Stats.Skipped,
			clip(res.Err, 60),
		})
	}
	t.AppendFooter(table.Row{"Total", "", "", r.Totals.Downloaded, r.Totals.Restricted, r.Totals.Skipped, ""})
	t.Render()

	fmt.Fprintf(w, "Summary: %d sources OK, %d failed, %d queries. Downloaded: %d, Restricted: %d, Skipped: %d (run %s)\n",
		r.Succeeded(), r.Failed(), r.Queries,
		r.Totals.Downloaded, r.Totals.Restricted, r.Totals.Skipped, r.RunID)
}

func init() {
	collectAllCmd.Flags().StringVarP(&collectFile, "file", "f", "", "file with one query per line (default paths.queries when present)")
	collectAllCmd.Flags().StringVarP(&collectQuery, "query", "q", "", "single search query when no query file is used")
	collectAllCmd.Flags().IntVarP(&collectLimit, "limit", "n", 0, "max new datasets per query (0 = config)")
	collectAllCmd.Flags().IntVarP(&collectRetries, "retries", "r", -1, "retry rounds for failed sources (default from config)")
	collectAllCmd.Flags().IntVarP(&collectSizeCap, "max-size", "m", -1, "size cap in MB for non-QDA files (0 = none, default from config)")
	collectAllCmd.Flags().StringSliceVarP(&collectSources, "sources", "s", nil, "only these source keys, in this order (default all)")
	rootCmd.AddCommand(collectAllCmd)
}
