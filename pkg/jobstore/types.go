package jobstore

import "time"

// Status is the lifecycle state of a managed job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether s is a final state. Terminal states never
// transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	default:
		return false
	}
}

// canTransition reports whether the from→to edge exists in the job state
// machine. Self-edges are allowed so field-only updates can reuse the same
// durable write path.
func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed || to == StatusTerminated
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusTerminated
	default:
		return false
	}
}

// StatePatch declares how one result file maps onto a named slot in shared
// application state.
type StatePatch struct {
	// Field is the shared-state slot the extracted value is written to.
	Field string `json:"field"`

	// ResultFile is a path relative to the job workspace.
	ResultFile string `json:"result_file"`

	// Pointer optionally drills into the parsed result file, as a
	// slash-separated path of object keys and array indices
	// (e.g. "metrics/0/value"). Empty means the whole document.
	Pointer string `json:"pointer,omitempty"`
}

// Job is the persistent record written to job.json.
//
// The schema is designed for backward-compatible extension (additive fields).
type Job struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Command    []string `json:"command"`
	WorkingDir string   `json:"working_directory"`
	Status     Status   `json:"status"`
	PID        int      `json:"pid,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	ExitCode      *int   `json:"exit_code,omitempty"`
	StdoutLogPath string `json:"stdout_log_path,omitempty"`
	StderrLogPath string `json:"stderr_log_path,omitempty"`
	ErrorSummary  string `json:"error_summary,omitempty"`

	// ResultGlobs names which workspace files are results, as doublestar
	// patterns relative to the workspace. Defaults to everything except
	// job.json and the log files.
	ResultGlobs []string `json:"result_globs,omitempty"`

	StatePatch   *StatePatch `json:"state_patch,omitempty"`
	StateApplied bool        `json:"state_applied"`
}

// Clone returns a deep copy so callers can never mutate the store's copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Command = append([]string(nil), j.Command...)
	out.ResultGlobs = append([]string(nil), j.ResultGlobs...)
	if j.StartTime != nil {
		t := *j.StartTime
		out.StartTime = &t
	}
	if j.EndTime != nil {
		t := *j.EndTime
		out.EndTime = &t
	}
	if j.LastHeartbeat != nil {
		t := *j.LastHeartbeat
		out.LastHeartbeat = &t
	}
	if j.ExitCode != nil {
		c := *j.ExitCode
		out.ExitCode = &c
	}
	if j.StatePatch != nil {
		p := *j.StatePatch
		out.StatePatch = &p
	}
	return &out
}
