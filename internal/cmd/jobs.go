package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcfield/jobforge/pkg/jobstore"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage background jobs",
	Long: `Inspect and manage job records.

This command group is designed to be agent-friendly:

- stable job ids
- predictable on-disk locations
- optional JSON output for machine parsing

Read-only commands work directly on the data dir and do not need a running
orchestrator; stop and results go through the HTTP API.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().String("status", "", "Filter by status: pending, running, completed, failed, terminated")
	jobsListCmd.Flags().Int("limit", 0, "Cap result count (0 = all)")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

// openLocalStore loads the durable job records for read-only CLI commands.
func openLocalStore() (*jobstore.Store, error) {
	store := jobstore.NewStore(cfg.JobsDir())
	if _, _, err := store.LoadAll(); err != nil {
		return nil, err
	}
	return store, nil
}

// resolveJobID accepts a full id or an unambiguous prefix.
func resolveJobID(store *jobstore.Store, prefix string) (string, error) {
	if _, err := store.Get(prefix); err == nil {
		return prefix, nil
	}

	var matches []string
	for _, j := range store.List("", 0) {
		if strings.HasPrefix(j.ID, prefix) {
			matches = append(matches, j.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no job matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("job id prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	statusStr, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	var filter jobstore.Status
	if s := strings.TrimSpace(strings.ToLower(statusStr)); s != "" {
		filter = jobstore.Status(s)
		switch filter {
		case jobstore.StatusPending, jobstore.StatusRunning, jobstore.StatusCompleted,
			jobstore.StatusFailed, jobstore.StatusTerminated:
		default:
			return fmt.Errorf("invalid status filter %q", statusStr)
		}
	}

	store, err := openLocalStore()
	if err != nil {
		return err
	}

	jobs := store.List(filter, limit)
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tNAME\tSTATUS\tSTARTED\tENDED\tEXIT\tCOMMAND")
	for _, j := range jobs {
		name := j.Name
		if name == "" {
			name = "-"
		}
		exit := "-"
		if j.ExitCode != nil {
			exit = fmt.Sprintf("%d", *j.ExitCode)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortJobID(j.ID),
			name,
			j.Status,
			formatOptionalTime(j.StartTime),
			formatOptionalTime(j.EndTime),
			exit,
			strings.Join(j.Command, " "),
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	store, err := openLocalStore()
	if err != nil {
		return err
	}
	resolvedID, err := resolveJobID(store, jobID)
	if err != nil {
		return err
	}
	rec, err := store.Get(resolvedID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", rec.ID)
	if rec.Name != "" {
		_, _ = fmt.Fprintf(os.Stdout, "name=%s\n", rec.Name)
	}
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", rec.Status)
	_, _ = fmt.Fprintf(os.Stdout, "command=%s\n", strings.Join(rec.Command, " "))
	_, _ = fmt.Fprintf(os.Stdout, "workspace=%s\n", rec.WorkingDir)
	if rec.PID > 0 {
		_, _ = fmt.Fprintf(os.Stdout, "pid=%d\n", rec.PID)
	}
	if rec.StartTime != nil {
		_, _ = fmt.Fprintf(os.Stdout, "start_time=%s\n", rec.StartTime.UTC().Format(time.RFC3339))
	}
	if rec.EndTime != nil {
		_, _ = fmt.Fprintf(os.Stdout, "end_time=%s\n", rec.EndTime.UTC().Format(time.RFC3339))
	}
	if rec.ExitCode != nil {
		_, _ = fmt.Fprintf(os.Stdout, "exit_code=%d\n", *rec.ExitCode)
	}
	if rec.ErrorSummary != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error_summary=%s\n", rec.ErrorSummary)
	}
	if rec.StatePatch != nil {
		_, _ = fmt.Fprintf(os.Stdout, "state_field=%s\n", rec.StatePatch.Field)
		_, _ = fmt.Fprintf(os.Stdout, "state_applied=%t\n", rec.StateApplied)
	}
	return nil
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
