package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/qda-harvester/internal/export"
	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/store"
)

var detailCmd = &cobra.Command{
	Use:   "detail ID...",
	Short: "Show every field of the given records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil || id <= 0 {
				return eris.Errorf("detail: invalid id %q", a)
			}
			ids = append(ids, id)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		for _, id := range ids {
			rec, err := st.Get(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(out, "Record %d not found\n", id)
				continue
			}
			if err != nil {
				return err
			}
			formatDetail(out, rec)
		}
		return nil
	},
}

// formatDetail prints one row per persisted column plus the derived state.
// Empty fields are omitted.
func formatDetail(w io.Writer, rec *model.File) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Record %d", rec.ID)
	t.AppendRow(table.Row{"state", rec.State()})
	values := export.Row(rec)
	for i, col := range store.Columns() {
		if col == "id" || values[i] == "" {
			continue
		}
		t.AppendRow(table.Row{col, clip(values[i], 100)})
	}
	t.Render()
}

func init() {
	rootCmd.AddCommand(detailCmd)
}
