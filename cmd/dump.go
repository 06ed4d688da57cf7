package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/qda-harvester/internal/export"
	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/store"
)

var (
	dumpFormat string
	dumpOutput string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Export every stored record to CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if dumpFormat != "csv" && dumpFormat != "xlsx" {
			return eris.Errorf("unsupported format %q (valid: csv, xlsx)", dumpFormat)
		}
		out := dumpOutput
		if out == "" {
			out = filepath.Join(cfg.Paths.Resolve(cfg.Paths.Output), "metadata."+dumpFormat)
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return eris.Wrap(err, "dump: create output directory")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		records, err := st.List(ctx, store.Filter{})
		if err != nil {
			return eris.Wrap(err, "dump: list records")
		}

		switch dumpFormat {
		case "xlsx":
			err = export.WriteXLSX(out, records)
		default:
			err = writeCSVFile(out, records)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", len(records), out)
		return nil
	},
}

func writeCSVFile(path string, records []model.File) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dump: create %s", path)
	}
	if err := export.WriteCSV(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFormat, "format", "csv", "output format: csv or xlsx")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "output path (default <output>/metadata.<format>)")
	rootCmd.AddCommand(dumpCmd)
}
