package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type jobsGCResult struct {
	Deleted      int    `json:"deleted"`
	WouldDelete  int    `json:"would_delete"`
	DryRun       bool   `json:"dry_run"`
	MaxAgeString string `json:"max_age"`
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect old terminal job workspaces",
	RunE:  runJobsGC,
}

func init() {
	jobsCmd.AddCommand(jobsGCCmd)

	jobsGCCmd.Flags().String("max-age", "168h", "Delete terminal jobs older than this duration")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many jobs would be deleted")
	jobsGCCmd.Flags().Bool("json", false, "Output as JSON")
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	maxAgeStr = strings.TrimSpace(maxAgeStr)
	if maxAgeStr == "" {
		maxAgeStr = "168h"
	}
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return fmt.Errorf("invalid --max-age: %w", err)
	}
	if maxAge <= 0 {
		return fmt.Errorf("--max-age must be > 0")
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := openLocalStore()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	deleted := 0
	for _, j := range store.List("", 0) {
		if !j.Status.Terminal() || j.EndTime == nil {
			continue
		}
		if now.Sub(j.EndTime.UTC()) <= maxAge {
			continue
		}
		if !dryRun {
			if err := store.Remove(j.ID); err != nil {
				return err
			}
		}
		deleted++
	}

	if jsonOutput {
		res := jobsGCResult{DryRun: dryRun, MaxAgeString: maxAgeStr}
		if dryRun {
			res.WouldDelete = deleted
		} else {
			res.Deleted = deleted
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if dryRun {
		_, _ = fmt.Fprintf(os.Stdout, "would delete %d job(s) older than %s\n", deleted, maxAgeStr)
		return nil
	}
	_, _ = fmt.Fprintf(os.Stdout, "deleted %d job(s) older than %s\n", deleted, maxAgeStr)
	return nil
}
