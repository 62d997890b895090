package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var jobsResultsCmd = &cobra.Command{
	Use:   "results <job_id>",
	Short: "Fetch results for a terminal job",
	Long: `Fetch the result payload for a job.

Completed jobs return their result files (and the parsed state-patch result
when one was declared). Failed jobs return the error summary and log paths
instead. Pending and running jobs are not ready yet.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsResults,
}

func init() {
	jobsCmd.AddCommand(jobsResultsCmd)

	jobsResultsCmd.Flags().String("server", "http://localhost:8080", "Orchestrator base URL")
	jobsResultsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsResults(cmd *cobra.Command, args []string) error {
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	store, err := openLocalStore()
	if err == nil {
		if resolved, rerr := resolveJobID(store, jobID); rerr == nil {
			jobID = resolved
		}
	}

	serverURL, _ := cmd.Flags().GetString("server")
	payload, err := newAPIClient(serverURL).results(jobID)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Results unavailable", err)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", payload.Job.ID)
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", payload.Job.Status)
	if payload.ErrorSummary != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error_summary=%s\n", payload.ErrorSummary)
		_, _ = fmt.Fprintf(os.Stdout, "stdout_log=%s\n", payload.StdoutLogPath)
		_, _ = fmt.Fprintf(os.Stdout, "stderr_log=%s\n", payload.StderrLogPath)
		return nil
	}
	for _, f := range payload.Files {
		_, _ = fmt.Fprintf(os.Stdout, "file=%s\n", f)
	}
	if payload.Result != nil {
		b, err := json.MarshalIndent(payload.Result, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "result=%s\n", string(b))
	}
	return nil
}
