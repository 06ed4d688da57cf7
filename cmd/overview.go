package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/qda-harvester/internal/store"
)

// breakdown is one grouped section of the overview.
type breakdown struct {
	Title   string
	Dim     store.Dimension
	Limit   int
	Buckets []store.Bucket
}

var overviewSections = []breakdown{
	{Title: "By source", Dim: store.BySource},
	{Title: "By language", Dim: store.ByLanguage, Limit: 10},
	{Title: "By software", Dim: store.BySoftware, Limit: 10},
	{Title: "By file type", Dim: store.ByFileType, Limit: 15},
	{Title: "By license", Dim: store.ByLicense, Limit: 10},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Summarize the stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var sum *store.Summary
		sections := append([]breakdown(nil), overviewSections...)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			if sum, err = st.Summary(gctx); err != nil {
				return eris.Wrap(err, "overview: summary")
			}
			return nil
		})
		for i := range sections {
			sec := &sections[i]
			g.Go(func() error {
				var err error
				if sec.Buckets, err = st.Breakdown(gctx, sec.Dim, sec.Limit); err != nil {
					return eris.Wrapf(err, "overview: breakdown by %s", sec.Dim)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		formatOverview(cmd.OutOrStdout(), sum, sections)
		return nil
	},
}

func formatOverview(w io.Writer, sum *store.Summary, sections []breakdown) {
	fmt.Fprintf(w, "Records:        %d\n", sum.Total)
	fmt.Fprintf(w, "QDA files:      %d\n", sum.QDA)
	fmt.Fprintf(w, "Downloaded:     %d (%s)\n", sum.Downloaded, humanSize(sum.DownloadedBytes))
	fmt.Fprintf(w, "Restricted:     %d\n", sum.Restricted)
	fmt.Fprintf(w, "Metadata only:  %d\n", sum.MetadataOnly)
	fmt.Fprintf(w, "Sources:        %d\n", sum.Sources)

	for _, sec := range sections {
		if len(sec.Buckets) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", sec.Title)
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Value", "Total", "QDA", "Downloaded", "Restricted"})
		for _, b := range sec.Buckets {
			t.AppendRow(table.Row{clip(b.Value, 40), b.Total, b.QDA, b.Downloaded, b.Restricted})
		}
		t.Render()
	}
}

func init() {
	rootCmd.AddCommand(overviewCmd)
}
