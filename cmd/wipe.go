package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var wipeYes bool

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all records, downloads, exports and the log",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if !wipeYes && !confirm(cmd.InOrStdin(), out, "This deletes every record and downloaded file. Continue? [y/N] ") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		n, err := st.Wipe(ctx)
		_ = st.Close()
		if err != nil {
			return eris.Wrap(err, "wipe: delete records")
		}
		fmt.Fprintf(out, "Removed %d records\n", n)

		dirs := []string{cfg.Paths.Resolve(cfg.Paths.Downloads), cfg.Paths.Resolve(cfg.Paths.Output)}
		for _, dir := range dirs {
			if err := resetDir(dir); err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %s\n", dir)
		}

		if err := removeIfExists(cfg.Log.File); err != nil {
			return err
		}
		if cfg.Log.File != "" {
			fmt.Fprintf(out, "Removed %s\n", cfg.Log.File)
		}
		return nil
	},
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// resetDir removes dir with its contents and re-creates it empty.
func resetDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return eris.Wrapf(err, "wipe: remove %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "wipe: create %s", dir)
	}
	return nil
}

func removeIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(err, "wipe: remove %s", path)
	}
	return nil
}

func init() {
	wipeCmd.Flags().BoolVarP(&wipeYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(wipeCmd)
}
