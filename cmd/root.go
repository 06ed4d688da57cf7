package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qda-harvester/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "qda-harvester",
	Short: "Harvest qualitative research data from open repositories",
	Long:  "Searches research-data repositories for qualitative datasets, downloads openly licensed QDA project files and their companions, and catalogs every admitted file.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
