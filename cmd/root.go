// Package cmd holds the cryptofmv command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"cryptofmv/config"
	"cryptofmv/logger"
)

var (
	configPath string
	todayFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "cryptofmv",
	Short:         "Historical FMV acquisition for crypto wallet exports",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "Override today's date (YYYY-MM-DD)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(fillCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("chain", "", "Export a single chain (default: all)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.GetLogger().WithError(err).Error("command failed")
		os.Exit(1)
	}
}
