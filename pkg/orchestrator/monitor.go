package orchestrator

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arcfield/jobforge/pkg/jobstore"
)

// errorSummaryBytes is how much of the stderr tail is lifted into
// error_summary for display without reading the full log.
const errorSummaryBytes = 500

// startJob registers an activeJob and hands it to a monitor goroutine.
// The record must already exist in the store.
func (m *Manager) startJob(jobID string) {
	waitCtx, cancel := context.WithCancel(m.baseCtx)
	a := &activeJob{
		id:         jobID,
		cancelWait: cancel,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	m.active[jobID] = a
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runJob(waitCtx, a)
}

// runJob owns one job end to end: gate admission, launch, waiting for exit,
// finalization, and reconciliation. The gate slot is released on every exit
// path via defer.
func (m *Manager) runJob(waitCtx context.Context, a *activeJob) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.active, a.id)
		m.mu.Unlock()
		close(a.done)
	}()

	if err := m.gate.Acquire(waitCtx, 1); err != nil {
		if a.terminateRequested() {
			// Terminated while pending: the launch never happens.
			m.finalizeTerminated(a.id, nil)
		}
		// Otherwise the orchestrator is shutting down; the record stays
		// pending on disk and the recovery scanner relaunches it.
		return
	}
	defer m.gate.Release(1)

	if a.terminateRequested() {
		m.finalizeTerminated(a.id, nil)
		return
	}

	job, err := m.store.Get(a.id)
	if err != nil {
		m.logger.Error("monitor lost its job record", zap.String("job_id", a.id), zap.Error(err))
		return
	}
	// A terminate that found no registered monitor may have finalized the
	// record directly between creation and this point. Only pending records
	// get launched.
	if job.Status != jobstore.StatusPending {
		return
	}

	m.launchAndWait(a, job)
}

func (m *Manager) launchAndWait(a *activeJob, job *jobstore.Job) {
	if info, err := os.Stat(job.WorkingDir); err != nil || !info.IsDir() {
		m.failBeforeStart(job.ID, "workspace "+job.WorkingDir+" does not exist at launch")
		return
	}

	stdoutPath := jobstore.StdoutPath(job)
	stderrPath := jobstore.StderrPath(job)

	stdoutFile, err := openLogFile(stdoutPath)
	if err != nil {
		m.failBeforeStart(job.ID, "create stdout log: "+err.Error())
		return
	}
	stderrFile, err := openLogFile(stderrPath)
	if err != nil {
		_ = stdoutFile.Close()
		m.failBeforeStart(job.ID, "create stderr log: "+err.Error())
		return
	}
	defer func() {
		_ = stdoutFile.Close()
		_ = stderrFile.Close()
	}()

	cmd := exec.Command(job.Command[0], job.Command[1:]...)
	cmd.Dir = job.WorkingDir
	// Fresh file handles go straight to the child. The child can never
	// inherit the orchestrator's own stdio, and with no pipes in between
	// the kernel delivers the full stream to disk regardless of size.
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Stdin = nil
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		m.failBeforeStart(job.ID, "start process: "+err.Error())
		return
	}
	pid := cmd.Process.Pid

	now := time.Now().UTC()
	if _, err := m.store.Update(job.ID, func(j *jobstore.Job) error {
		j.Status = jobstore.StatusRunning
		j.PID = pid
		j.StartTime = &now
		j.LastHeartbeat = &now
		j.StdoutLogPath = stdoutPath
		j.StderrLogPath = stderrPath
		return nil
	}); err != nil {
		m.logger.Error("persist running transition failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}
	m.logger.Info("job started",
		zap.String("job_id", job.ID),
		zap.Int("pid", pid))

	a.mu.Lock()
	a.proc = cmd.Process
	a.started = true
	alreadyTerm := a.termRequested
	a.mu.Unlock()
	if alreadyTerm {
		// Terminate raced the launch; deliver the signal it could not send.
		_ = cmd.Process.Signal(syscall.SIGTERM)
		grace := m.cfg.TerminateGrace
		proc := cmd.Process
		go func() {
			select {
			case <-a.done:
			case <-time.After(grace):
				_ = proc.Kill()
			}
		}()
	}

	stopHeartbeat := m.startHeartbeat(job.ID)
	waitErr := cmd.Wait()
	stopHeartbeat()

	exitCode := cmd.ProcessState.ExitCode()
	endTime := time.Now().UTC()

	status := jobstore.StatusCompleted
	summary := ""
	switch {
	case a.terminateRequested():
		status = jobstore.StatusTerminated
	case waitErr == nil && exitCode == 0:
		status = jobstore.StatusCompleted
	default:
		status = jobstore.StatusFailed
		summary = tailFile(stderrPath, errorSummaryBytes)
	}

	updated, err := m.store.Update(job.ID, func(j *jobstore.Job) error {
		j.Status = status
		j.ExitCode = &exitCode
		j.EndTime = &endTime
		j.ErrorSummary = summary
		return nil
	})
	if err != nil {
		m.logger.Error("persist terminal transition failed",
			zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	m.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("exit_code", exitCode))

	// Reconcile before the deferred gate release so "completed" and "state
	// application attempted" stay temporally coupled. An apply failure
	// leaves state_applied=false for replay on the next start.
	if updated.Status == jobstore.StatusCompleted && updated.StatePatch != nil {
		if err := m.recon.Apply(updated); err != nil {
			m.logger.Warn("state patch apply failed",
				zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// failBeforeStart finalizes a job that never produced a child process.
// exit_code stays unset so an orchestration fault is distinguishable from a
// computation failure.
func (m *Manager) failBeforeStart(jobID, summary string) {
	now := time.Now().UTC()
	if _, err := m.store.Update(jobID, func(j *jobstore.Job) error {
		j.Status = jobstore.StatusFailed
		j.EndTime = &now
		j.ErrorSummary = summary
		return nil
	}); err != nil {
		m.logger.Error("persist launch failure failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
	m.logger.Warn("job failed before start",
		zap.String("job_id", jobID),
		zap.String("reason", summary))
}

func (m *Manager) finalizeTerminated(jobID string, exitCode *int) {
	now := time.Now().UTC()
	if _, err := m.store.Update(jobID, func(j *jobstore.Job) error {
		j.Status = jobstore.StatusTerminated
		j.EndTime = &now
		if exitCode != nil {
			j.ExitCode = exitCode
		}
		return nil
	}); err != nil {
		m.logger.Error("persist terminated transition failed",
			zap.String("job_id", jobID), zap.Error(err))
	}
}

// startHeartbeat refreshes last_heartbeat on a ticker until the returned
// stop function is called.
func (m *Manager) startHeartbeat(jobID string) func() {
	t := time.NewTicker(m.cfg.HeartbeatInterval)
	stopped := make(chan struct{})
	quit := make(chan struct{})

	go func() {
		defer close(stopped)
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				now := time.Now().UTC()
				_, _ = m.store.Update(jobID, func(j *jobstore.Job) error {
					j.LastHeartbeat = &now
					return nil
				})
			}
		}
	}()

	return func() {
		t.Stop()
		close(quit)
		<-stopped
	}
}

// openLogFile creates a fresh log file for one execution. A relaunch after
// restart starts the log over.
func openLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
}

// tailFile returns up to the last n bytes of the file at path.
func tailFile(path string, n int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	size := info.Size()
	if size > n {
		if _, err := f.Seek(size-n, io.SeekStart); err != nil {
			return ""
		}
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(b)
}
