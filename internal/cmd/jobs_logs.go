package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcfield/jobforge/pkg/jobstore"
)

var jobsLogsCmd = &cobra.Command{
	Use:   "logs <job_id>",
	Short: "Show captured logs for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsLogs,
}

func init() {
	jobsCmd.AddCommand(jobsLogsCmd)

	jobsLogsCmd.Flags().String("stream", "stdout", "Log stream: stdout, stderr, or both")
	jobsLogsCmd.Flags().Int("tail", 200, "Show last N lines (0 = whole file)")
	jobsLogsCmd.Flags().Bool("follow", false, "Follow log output until the job finishes")
}

func runJobsLogs(cmd *cobra.Command, args []string) error {
	jobID := strings.TrimSpace(args[0])
	if jobID == "" {
		return fmt.Errorf("job_id is required")
	}

	stream, _ := cmd.Flags().GetString("stream")
	stream = strings.TrimSpace(strings.ToLower(stream))
	if stream == "" {
		stream = "stdout"
	}
	switch stream {
	case "stdout", "stderr", "both":
	default:
		return fmt.Errorf("invalid --stream %q", stream)
	}

	tailN, _ := cmd.Flags().GetInt("tail")
	if tailN < 0 {
		tailN = 0
	}
	follow, _ := cmd.Flags().GetBool("follow")

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

	var paths []string
	if stream == "stdout" || stream == "both" {
		paths = append(paths, logPathOrDefault(rec.StdoutLogPath, jobstore.StdoutPath(rec)))
	}
	if stream == "stderr" || stream == "both" {
		paths = append(paths, logPathOrDefault(rec.StderrLogPath, jobstore.StderrPath(rec)))
	}

	for _, p := range paths {
		if err := printTail(p, tailN); err != nil {
			return err
		}
	}

	if !follow {
		return nil
	}
	return followLogs(store, resolvedID, paths)
}

func logPathOrDefault(path, fallback string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	return fallback
}

func printTail(path string, tailN int) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if tailN > 0 && len(lines) > tailN {
		lines = lines[len(lines)-tailN:]
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

// followLogs polls the log files for new bytes until the job reaches a
// terminal state. Records on disk are reread each cycle since another
// process owns them.
func followLogs(store *jobstore.Store, jobID string, paths []string) error {
	offsets := make(map[string]int64, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			offsets[p] = info.Size()
		}
	}

	for {
		time.Sleep(500 * time.Millisecond)

		for _, p := range paths {
			f, err := os.Open(p)
			if err != nil {
				continue
			}
			if _, err := f.Seek(offsets[p], io.SeekStart); err == nil {
				n, _ := io.Copy(os.Stdout, f)
				offsets[p] += n
			}
			_ = f.Close()
		}

		fresh := jobstore.NewStore(store.RootDir())
		if _, _, err := fresh.LoadAll(); err != nil {
			return err
		}
		rec, err := fresh.Get(jobID)
		if err != nil {
			return err
		}
		if rec.Status.Terminal() {
			return nil
		}
	}
}
