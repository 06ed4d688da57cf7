package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/qda-harvester/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := initRegistry()
		if err != nil {
			return err
		}
		formatSources(cmd.OutOrStdout(), reg.Entries(), cfg.Harvest.FolderNames)
		return nil
	},
}

func formatSources(w io.Writer, entries []source.Entry, folders map[string]string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Key", "Kind", "Name", "URL", "Folder"})
	for _, e := range entries {
		folder := folders[e.Key]
		if folder == "" {
			folder = e.Key
		}
		t.AppendRow(table.Row{e.Key, e.Kind, e.Name, e.URL, folder})
	}
	t.Render()
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
