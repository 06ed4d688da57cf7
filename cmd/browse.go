package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/store"
)

var browseFilter store.Filter

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "List stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("browse"); err != nil {
			return err
		}
		if browseFilter.Limit < 0 || browseFilter.Offset < 0 {
			return eris.New("browse: limit and offset must be >= 0")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		total, err := st.Count(ctx, browseFilter)
		if err != nil {
			return eris.Wrap(err, "browse: count")
		}
		records, err := st.List(ctx, browseFilter)
		if err != nil {
			return eris.Wrap(err, "browse: list")
		}

		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No records found.")
			return nil
		}
		formatRecords(cmd.OutOrStdout(), records)
		fmt.Fprintf(cmd.OutOrStdout(), "Showing %d of %d records\n", len(records), total)
		return nil
	},
}

func formatRecords(w io.Writer, records []model.File) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "File", "Type", "Source", "QDA", "Status", "Size"})
	for i := range records {
		r := &records[i]
		qda := ""
		if r.IsQDAFile {
			qda = "yes"
		}
		t.AppendRow(table.Row{r.ID, clip(r.FileName, 40), r.FileType, r.SourceName, qda, r.State(), humanSize(r.FileSizeBytes)})
	}
	t.Render()
}

func init() {
	f := browseCmd.Flags()
	f.StringVarP(&browseFilter.Source, "source", "s", "", "only records of this source")
	f.StringVar(&browseFilter.Search, "search", "", "text in title, description, keywords or tags")
	f.StringVar(&browseFilter.Language, "language", "", "language contains")
	f.StringVar(&browseFilter.Software, "software", "", "software contains")
	f.StringVarP(&browseFilter.FileType, "type", "t", "", "exact file extension")
	f.BoolVar(&browseFilter.QDAOnly, "qda", false, "only QDA files")
	f.BoolVar(&browseFilter.RestrictedOnly, "restricted", false, "only restricted files")
	f.BoolVar(&browseFilter.HasSoftware, "has-software", false, "only records naming software")
	f.BoolVar(&browseFilter.HasKeywords, "has-keywords", false, "only records with keywords")
	f.IntVarP(&browseFilter.Limit, "limit", "n", 50, "max rows (0 = all)")
	f.IntVar(&browseFilter.Offset, "offset", 0, "rows to skip")
	rootCmd.AddCommand(browseCmd)
}
