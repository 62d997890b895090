package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job_id>",
	Short: "Terminate a pending or running job",
	Long: `Request termination of a job through the orchestrator.

A pending job is prevented from launching. A running job receives SIGTERM,
then SIGKILL after the orchestrator's grace period; its record is finalized
once the process is confirmed gone.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsStop,
}

func init() {
	jobsCmd.AddCommand(jobsStopCmd)

	jobsStopCmd.Flags().String("server", "http://localhost:8080", "Orchestrator base URL")
	jobsStopCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsStop(cmd *cobra.Command, args []string) error {
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	// Resolve prefixes against the local store before hitting the API.
	store, err := openLocalStore()
	if err == nil {
		if resolved, rerr := resolveJobID(store, jobID); rerr == nil {
			jobID = resolved
		}
	}

	serverURL, _ := cmd.Flags().GetString("server")
	job, err := newAPIClient(serverURL).terminate(jobID)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Stop failed", err)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", job.ID)
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", job.Status)
	return nil
}
