package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arcfield/jobforge/internal/observability"
	"github.com/arcfield/jobforge/pkg/submission"
)

var (
	submitJobPath string
	submitServer  string
	submitJSON    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job from a manifest",
	Long: `Submit a background job described by a YAML or JSON manifest.

The workspace named in the manifest must already exist and contain the
job's input files; submission is rejected otherwise so a launched process
can never race its own inputs.

Example:
  jobforge submit --job run.yaml
  jobforge submit --job run.yaml --server http://localhost:8080`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitJobPath, "job", "j", "", "Path to job manifest (required)")
	submitCmd.Flags().StringVar(&submitServer, "server", "http://localhost:8080", "Orchestrator base URL")
	submitCmd.Flags().BoolVar(&submitJSON, "json", false, "Output as JSON")

	_ = submitCmd.MarkFlagRequired("job")
}

func runSubmit(_ *cobra.Command, _ []string) error {
	m, err := submission.Load(submitJobPath)
	if err != nil {
		observability.CLILogger.Error("Failed to load manifest",
			zap.String("path", submitJobPath),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	observability.CLILogger.Debug("Loaded manifest",
		zap.String("path", submitJobPath),
		zap.Strings("command", m.Command),
		zap.String("workspace", m.Workspace))

	job, err := newAPIClient(submitServer).submit(m)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Submit failed", err)
	}

	if submitJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", job.ID)
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", job.Status)
	_, _ = fmt.Fprintf(os.Stdout, "workspace=%s\n", job.WorkingDir)
	return nil
}
