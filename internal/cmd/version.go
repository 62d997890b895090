package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcfield/jobforge/internal/server/handlers"
)

// Version is set via -ldflags at build time.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the jobforge version",
	Run: func(_ *cobra.Command, _ []string) {
		_, _ = fmt.Fprintln(os.Stdout, Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	handlers.Version = Version
}
