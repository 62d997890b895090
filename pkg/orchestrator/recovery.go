package orchestrator

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/arcfield/jobforge/pkg/jobstore"
)

// orphanPollInterval is how often an adopted process is checked for liveness.
const orphanPollInterval = time.Second

// RecoveryReport summarizes one recovery scan.
type RecoveryReport struct {
	Loaded         int      `json:"loaded"`
	SkippedRecords []string `json:"skipped_records,omitempty"`
	Relaunched     int      `json:"relaunched"`
	Adopted        int      `json:"adopted"`
	Orphaned       int      `json:"orphaned"`
	ReplayFailures int      `json:"replay_failures"`
}

// Recover rebuilds the store from durable metadata and reconciles what a
// previous run left behind. It runs once, synchronously, before the client
// API is served.
//
// Pending jobs are re-enqueued through the normal launch path. Running jobs
// whose pid is gone are failed as orphaned. Running jobs whose pid is still
// alive are adopted: the process is not our child so Wait is unavailable,
// and a watcher polls pid liveness instead; its eventual exit status is
// unknowable, so disappearance finalizes the job as failed. Finally, missed
// state patches are replayed.
func (m *Manager) Recover() (*RecoveryReport, error) {
	loaded, skipped, err := m.store.LoadAll()
	if err != nil {
		return nil, err
	}
	report := &RecoveryReport{Loaded: loaded, SkippedRecords: skipped}
	for _, id := range skipped {
		m.logger.Warn("skipped unparseable job record", zap.String("job_id", id))
	}

	for _, job := range m.store.List("", 0) {
		switch job.Status {
		case jobstore.StatusPending:
			m.logger.Info("relaunching pending job from previous run",
				zap.String("job_id", job.ID))
			m.startJob(job.ID)
			report.Relaunched++

		case jobstore.StatusRunning:
			if isProcessAlive(job.PID) {
				m.adoptRunning(job.ID, job.PID)
				report.Adopted++
				continue
			}
			now := time.Now().UTC()
			_, err := m.store.Update(job.ID, func(j *jobstore.Job) error {
				j.Status = jobstore.StatusFailed
				j.EndTime = &now
				j.ErrorSummary = "orphaned at restart"
				return nil
			})
			if err != nil {
				m.logger.Error("persist orphan reclassification failed",
					zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			m.logger.Warn("reclassified orphaned job",
				zap.String("job_id", job.ID),
				zap.Int("pid", job.PID))
			report.Orphaned++
		}
	}

	failures := m.recon.ReplayMissed(m.store.List("", 0))
	report.ReplayFailures = len(failures)

	m.logger.Info("recovery scan complete",
		zap.Int("loaded", report.Loaded),
		zap.Int("relaunched", report.Relaunched),
		zap.Int("adopted", report.Adopted),
		zap.Int("orphaned", report.Orphaned),
		zap.Int("replay_failures", report.ReplayFailures))
	return report, nil
}

// adoptRunning re-attaches a watcher to a still-alive process from a
// previous run. The job stays running and counts against the gate; when the
// process disappears the record is finalized without an exit code.
func (m *Manager) adoptRunning(jobID string, pid int) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		proc = nil
	}

	a := &activeJob{
		id:         jobID,
		cancelWait: func() {},
		done:       make(chan struct{}),
	}
	a.proc = proc
	a.started = true

	m.mu.Lock()
	m.active[jobID] = a
	m.mu.Unlock()

	// Keep the concurrency bound honest. Recovery runs before submissions,
	// so slots are normally free; if a previous run was over-committed we
	// watch anyway rather than stall recovery.
	holdsSlot := m.gate.TryAcquire(1)
	if !holdsSlot {
		m.logger.Warn("adopted job exceeds concurrency gate",
			zap.String("job_id", jobID), zap.Int("pid", pid))
	}

	m.logger.Info("adopted running job from previous run",
		zap.String("job_id", jobID), zap.Int("pid", pid))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, jobID)
			m.mu.Unlock()
			close(a.done)
		}()
		if holdsSlot {
			defer m.gate.Release(1)
		}

		t := time.NewTicker(orphanPollInterval)
		defer t.Stop()
		for {
			select {
			case <-m.baseCtx.Done():
				return
			case <-t.C:
				if isProcessAlive(pid) {
					now := time.Now().UTC()
					_, _ = m.store.Update(jobID, func(j *jobstore.Job) error {
						j.LastHeartbeat = &now
						return nil
					})
					continue
				}

				now := time.Now().UTC()
				status := jobstore.StatusFailed
				summary := "orphaned at restart; exit status unknown"
				if a.terminateRequested() {
					status = jobstore.StatusTerminated
					summary = ""
				}
				_, err := m.store.Update(jobID, func(j *jobstore.Job) error {
					j.Status = status
					j.EndTime = &now
					j.ErrorSummary = summary
					return nil
				})
				if err != nil {
					m.logger.Error("persist adopted-job finalization failed",
						zap.String("job_id", jobID), zap.Error(err))
				}
				return
			}
		}
	}()
}
