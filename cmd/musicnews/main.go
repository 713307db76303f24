package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/syncpower/musicnews/config"
	"github.com/syncpower/musicnews/logger"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "musicnews",
		Short:         "Aggregate music interviews and columns into one paginated feed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.musicnews/config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(columnsCmd())
	root.AddCommand(pagesCmd())

	return root
}

// loadConfig reads .env files, the config file and the environment, and
// builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	if err := config.LoadEnvFiles("."); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
