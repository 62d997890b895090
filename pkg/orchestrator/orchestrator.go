// Package orchestrator runs heavy computations as isolated child processes.
//
// A submission creates a durable job record immediately; the launch itself
// waits behind a counting gate bounding how many children run at once. One
// monitor goroutine per active job owns the transition from running to a
// terminal state, captures output, and triggers state reconciliation.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/arcfield/jobforge/internal/errors"
	"github.com/arcfield/jobforge/pkg/jobstore"
	"github.com/arcfield/jobforge/pkg/reconciler"
)

// Config configures orchestrator behavior.
type Config struct {
	// MaxConcurrent bounds how many child processes run simultaneously.
	// Default: 3
	MaxConcurrent int

	// TerminateGrace is how long a terminated process gets after SIGTERM
	// before SIGKILL. Default: 10s
	TerminateGrace time.Duration

	// HeartbeatInterval controls how often a running job's record refreshes
	// last_heartbeat. Default: 30s
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     3,
		TerminateGrace:    10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// SubmitRequest describes one unit of background work.
type SubmitRequest struct {
	// ID is optional; one is generated when empty.
	ID string

	// Name is an optional human label.
	Name string

	// Command is the executable plus arguments.
	Command []string

	// WorkingDir is the job workspace. The caller creates and populates it
	// before submitting; submission fails if it does not exist.
	WorkingDir string

	// ResultGlobs optionally names which workspace files are results.
	ResultGlobs []string

	// StatePatch optionally maps a result file onto shared application state.
	StatePatch *jobstore.StatePatch
}

// ResultPayload is the get-results response.
//
// For failed or terminated jobs it carries the error summary and log paths
// instead of a result value; the full logs stay on disk untruncated.
type ResultPayload struct {
	Job           jobstore.Job `json:"job"`
	Files         []string     `json:"files,omitempty"`
	Result        any          `json:"result,omitempty"`
	ErrorSummary  string       `json:"error_summary,omitempty"`
	StdoutLogPath string       `json:"stdout_log_path,omitempty"`
	StderrLogPath string       `json:"stderr_log_path,omitempty"`
}

// Manager is the client-facing orchestration core.
//
// All record mutations flow through the job store's durable update path;
// the Manager itself only coordinates launches, monitors, and termination.
type Manager struct {
	store  *jobstore.Store
	recon  *reconciler.Reconciler
	cfg    Config
	logger *zap.Logger

	gate *semaphore.Weighted

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	active map[string]*activeJob
	wg     sync.WaitGroup
}

// activeJob tracks a job between submission and finalization so terminate
// can reach it in any phase.
type activeJob struct {
	id string

	cancelWait context.CancelFunc // unblocks a pending gate wait
	done       chan struct{}      // closed once the record is finalized

	mu            sync.Mutex
	proc          *os.Process
	started       bool
	termRequested bool
}

func (a *activeJob) requestTerminate() (proc *os.Process, started bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.termRequested = true
	return a.proc, a.started
}

func (a *activeJob) terminateRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.termRequested
}

// New creates a Manager. Call Recover before serving submissions so durable
// records from a previous run are reloaded first.
func New(store *jobstore.Store, recon *reconciler.Reconciler, cfg Config, logger *zap.Logger) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = DefaultConfig().TerminateGrace
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:   store,
		recon:   recon,
		cfg:     cfg,
		logger:  logger,
		gate:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		baseCtx: ctx,
		stop:    cancel,
		active:  make(map[string]*activeJob),
	}
}

func (m *Manager) Store() *jobstore.Store {
	return m.store
}

// Submit validates the request, durably creates a pending record, and
// enqueues the launch. It returns the pending record immediately; the
// launch itself waits behind the concurrency gate.
func (m *Manager) Submit(req SubmitRequest) (*jobstore.Job, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}
	jobID := strings.TrimSpace(req.ID)
	if jobID == "" {
		jobID = uuid.New().String()
	}
	if strings.ContainsAny(jobID, "/\\") {
		return nil, fmt.Errorf("job id must not contain path separators")
	}

	workDir := strings.TrimSpace(req.WorkingDir)
	ownWorkspace := workDir == ""
	if ownWorkspace {
		workDir = m.store.JobDir(jobID)
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, apperrors.Orchestration("submit.resolve-workspace", err)
	}
	if ownWorkspace {
		if err := os.MkdirAll(absWorkDir, 0755); err != nil {
			return nil, apperrors.Orchestration("submit.create-workspace", err)
		}
	} else if info, err := os.Stat(absWorkDir); err != nil || !info.IsDir() {
		// The caller populates its own workspace before submitting; a missing
		// directory means the inputs cannot be there either.
		return nil, apperrors.WorkspaceMissing(jobID, absWorkDir)
	}

	job := &jobstore.Job{
		ID:          jobID,
		Name:        strings.TrimSpace(req.Name),
		Command:     append([]string(nil), req.Command...),
		WorkingDir:  absWorkDir,
		Status:      jobstore.StatusPending,
		CreatedAt:   time.Now().UTC(),
		ResultGlobs: append([]string(nil), req.ResultGlobs...),
		StatePatch:  req.StatePatch,
	}
	if err := m.store.Create(job); err != nil {
		return nil, err
	}

	m.startJob(job.ID)

	m.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.Strings("command", job.Command),
		zap.String("workspace", absWorkDir))
	return job.Clone(), nil
}

// GetStatus returns the current record for jobID.
func (m *Manager) GetStatus(jobID string) (*jobstore.Job, error) {
	return m.store.Get(jobID)
}

// List returns jobs newest-first, optionally filtered by status.
func (m *Manager) List(filter jobstore.Status, limit int) []jobstore.Job {
	return m.store.List(filter, limit)
}

// GetResults returns the result payload for a terminal job.
//
// Pending and running jobs yield ErrNotReady. Failed and terminated jobs
// yield a payload carrying the error summary and log paths. Completed jobs
// yield the result-glob file list plus, when a state patch is declared, the
// parsed result file.
func (m *Manager) GetResults(jobID string) (*ResultPayload, error) {
	job, err := m.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, apperrors.NotReady(job.ID, string(job.Status))
	}

	payload := &ResultPayload{
		Job:           *job,
		StdoutLogPath: job.StdoutLogPath,
		StderrLogPath: job.StderrLogPath,
	}
	if job.Status != jobstore.StatusCompleted {
		payload.ErrorSummary = job.ErrorSummary
		return payload, nil
	}

	payload.Files = collectResultFiles(job)

	if job.StatePatch != nil {
		resultPath := job.StatePatch.ResultFile
		if !filepath.IsAbs(resultPath) {
			resultPath = filepath.Join(job.WorkingDir, resultPath)
		}
		b, err := os.ReadFile(resultPath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, apperrors.ResultFileMissing(job.ID, job.StatePatch.ResultFile)
			}
			return nil, fmt.Errorf("read result file: %w", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("parse result file %s: %w", job.StatePatch.ResultFile, err)
		}
		payload.Result = doc
	}
	return payload, nil
}

// Terminate requests termination of a non-terminal job. A pending job is
// prevented from launching; a running job gets SIGTERM, then SIGKILL after
// the configured grace period. The monitor observes the eventual exit and
// finalizes the record, releasing the concurrency slot once the process is
// confirmed gone.
func (m *Manager) Terminate(jobID string) (*jobstore.Job, error) {
	job, err := m.store.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.AlreadyTerminal(job.ID, string(job.Status))
	}

	m.mu.Lock()
	a := m.active[job.ID]
	m.mu.Unlock()
	if a == nil {
		// Non-terminal record with no live monitor: a stale record from an
		// unrecovered crash. Finalize it directly.
		return m.store.Update(job.ID, func(j *jobstore.Job) error {
			now := time.Now().UTC()
			j.Status = jobstore.StatusTerminated
			j.EndTime = &now
			return nil
		})
	}

	proc, started := a.requestTerminate()
	a.cancelWait()

	if started && proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err == nil {
			// Escalate to SIGKILL if the process outlives the grace period.
			grace := m.cfg.TerminateGrace
			go func() {
				select {
				case <-a.done:
				case <-time.After(grace):
					_ = proc.Kill()
				}
			}()
		}
		m.logger.Info("termination signalled",
			zap.String("job_id", job.ID),
			zap.Int("pid", job.PID))
	} else {
		// Never launched: the monitor finalizes promptly once its gate wait
		// is cancelled. Give it a moment so callers see the terminal record.
		select {
		case <-a.done:
		case <-time.After(2 * time.Second):
		}
	}

	return m.store.Get(job.ID)
}

// Shutdown stops admitting launches and waits for active monitors until ctx
// expires. Child processes are not killed: their records survive on disk and
// the recovery scanner reclassifies them on the next start.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collectResultFiles lists workspace files matching the job's result globs,
// excluding the record and log files. Paths are relative to the workspace.
func collectResultFiles(job *jobstore.Job) []string {
	globs := job.ResultGlobs
	if len(globs) == 0 {
		globs = []string{"*"}
	}

	reserved := map[string]bool{
		"job.json":   true,
		"stdout.log": true,
		"stderr.log": true,
	}

	seen := make(map[string]bool)
	var files []string
	fsys := os.DirFS(job.WorkingDir)
	for _, g := range globs {
		matches, err := doublestar.Glob(fsys, g)
		if err != nil {
			continue
		}
		for _, rel := range matches {
			if reserved[rel] || seen[rel] || strings.HasPrefix(filepath.Base(rel), "job.json.tmp.") {
				continue
			}
			info, err := os.Stat(filepath.Join(job.WorkingDir, rel))
			if err != nil || info.IsDir() {
				continue
			}
			seen[rel] = true
			files = append(files, rel)
		}
	}
	sort.Strings(files)
	return files
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without sending a signal.
	if err := p.Signal(syscall.Signal(0)); err != nil {
		return false
	}
	return true
}
