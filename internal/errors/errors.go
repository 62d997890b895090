// Package errors defines the jobforge error taxonomy.
//
// Structural problems (unknown id, duplicate id, missing workspace) surface as
// API-level errors classified via errors.Is against the sentinels below. A
// computation's own failure is never one of these: it is recorded on the job
// record as status=failed and returned as data.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	// ErrDuplicateJob is returned when a submission reuses an existing job id.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrWorkspaceMissing is returned when a job's workspace directory does
	// not exist at submit or launch time.
	ErrWorkspaceMissing = errors.New("workspace missing")

	// ErrNotFound is returned for operations on an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady is returned by get-results while a job is still
	// pending or running.
	ErrNotReady = errors.New("job not ready")

	// ErrAlreadyTerminal is returned by terminate when the job is already
	// completed, failed, or terminated.
	ErrAlreadyTerminal = errors.New("job already terminal")

	// ErrResultFileMissing is returned by the reconciler when a declared
	// result file is absent from the workspace.
	ErrResultFileMissing = errors.New("result file missing")

	// ErrPointerNotFound is returned by the reconciler when a state patch
	// pointer does not resolve inside the result file.
	ErrPointerNotFound = errors.New("pointer not found")

	// ErrOrchestration covers internal launcher/monitor faults, as distinct
	// from the computation's own failure.
	ErrOrchestration = errors.New("orchestration failure")
)

// Error carries a sentinel plus context for logging and HTTP mapping.
type Error struct {
	Sentinel error  // wrapped sentinel for errors.Is() classification
	Message  string // human-readable message
	JobID    string // job the error relates to, if any
	Op       string // operation that failed (e.g. "launcher.start")
	Cause    error  // underlying error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// DuplicateJob builds an ErrDuplicateJob for the given id.
func DuplicateJob(jobID string) error {
	return &Error{
		Sentinel: ErrDuplicateJob,
		Message:  fmt.Sprintf("job %s already exists", jobID),
		JobID:    jobID,
	}
}

// WorkspaceMissing builds an ErrWorkspaceMissing for the given path.
func WorkspaceMissing(jobID, path string) error {
	return &Error{
		Sentinel: ErrWorkspaceMissing,
		Message:  fmt.Sprintf("workspace %s does not exist", path),
		JobID:    jobID,
	}
}

// NotFound builds an ErrNotFound for the given id.
func NotFound(jobID string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("job %s not found", jobID),
		JobID:    jobID,
	}
}

// NotReady builds an ErrNotReady for a job still in a non-terminal state.
func NotReady(jobID, status string) error {
	return &Error{
		Sentinel: ErrNotReady,
		Message:  fmt.Sprintf("job %s has no results yet (status=%s)", jobID, status),
		JobID:    jobID,
	}
}

// AlreadyTerminal builds an ErrAlreadyTerminal for the given id and status.
func AlreadyTerminal(jobID, status string) error {
	return &Error{
		Sentinel: ErrAlreadyTerminal,
		Message:  fmt.Sprintf("job %s is already %s", jobID, status),
		JobID:    jobID,
	}
}

// ResultFileMissing builds an ErrResultFileMissing for the given file.
func ResultFileMissing(jobID, file string) error {
	return &Error{
		Sentinel: ErrResultFileMissing,
		Message:  fmt.Sprintf("result file %s missing for job %s", file, jobID),
		JobID:    jobID,
	}
}

// PointerNotFound builds an ErrPointerNotFound for the given pointer.
func PointerNotFound(jobID, pointer string) error {
	return &Error{
		Sentinel: ErrPointerNotFound,
		Message:  fmt.Sprintf("pointer %q not found in result file for job %s", pointer, jobID),
		JobID:    jobID,
	}
}

// Orchestration wraps an internal fault with the operation that hit it.
func Orchestration(op string, cause error) error {
	return &Error{
		Sentinel: ErrOrchestration,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
