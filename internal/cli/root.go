package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"caucion-alerts/internal/app"
	"caucion-alerts/internal/config"
	"caucion-alerts/internal/fetcher"
	"caucion-alerts/internal/logging"
	"caucion-alerts/internal/storage"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:   "caucionwatcher",
	Short: "Watch caución rates and alert on threshold crossings",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto distinct statuses so a cron wrapper
// can tell credential problems from transient upstream ones.
func exitCode(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrAuth):
		return 2
	case errors.Is(err, storage.ErrLockHeld):
		return 3
	case errors.Is(err, fetcher.ErrTransient):
		return 4
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
