// Package cmd implements the jobforge command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcfield/jobforge/internal/config"
	"github.com/arcfield/jobforge/internal/observability"
)

var (
	cfgPath  string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "jobforge",
	Short: "Run heavy computations as managed background jobs",
	Long: `jobforge runs long, resource-heavy computations as isolated child
processes: submit a command with a pre-populated workspace, get a job id
back immediately, and poll for status or results while a bounded number of
jobs run concurrently. Job records survive restarts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		observability.SetLevel(cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}
