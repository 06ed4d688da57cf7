package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/qda-harvester/internal/harvest"
	"github.com/sells-group/qda-harvester/internal/model"
)

var (
	findQuery    string
	findFileType string
)

var findCmd = &cobra.Command{
	Use:   "find SOURCE",
	Short: "Search one source without downloading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := initRegistry()
		if err != nil {
			return err
		}
		src, err := reg.Get(args[0])
		if err != nil {
			return err
		}

		query := findQuery
		if query == "" {
			query = harvest.DefaultQuery
		}
		hits, err := src.Search(cmd.Context(), query, findFileType)
		if err != nil {
			return err
		}

		formatHits(cmd.OutOrStdout(), hits)
		fmt.Fprintf(cmd.OutOrStdout(), "%d results for %q on %s\n", len(hits), query, src.Label())
		return nil
	},
}

func formatHits(w io.Writer, hits []model.DatasetHit) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Title", "Authors", "Published"})
	for i, h := range hits {
		t.AppendRow(table.Row{i + 1, clip(h.Title, 60), clip(h.Authors, 30), clip(h.DatePublished, 10)})
	}
	t.Render()
}

func init() {
	findCmd.Flags().StringVarP(&findQuery, "query", "q", "", "search query (default \""+harvest.DefaultQuery+"\")")
	findCmd.Flags().StringVarP(&findFileType, "type", "t", "", "file type hint passed to the source")
	rootCmd.AddCommand(findCmd)
}
