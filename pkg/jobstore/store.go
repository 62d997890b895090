// Package jobstore is the authoritative index of all known jobs.
//
// Every job is mirrored durably as a per-job job.json so a restart can
// rebuild the index. Directory layout:
//
//	<root>/<job_id>/job.json
//	<root>/<job_id>/stdout.log
//	<root>/<job_id>/stderr.log
//
// inputs and result files live alongside, written by the caller and the
// child process respectively. Root is expected to be under the app data dir.
package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/arcfield/jobforge/internal/errors"
)

// Store persists and indexes Jobs.
//
// The in-memory map is the read path; every mutation goes through the
// durable write path first (write-to-temp then atomic rename), so a reader
// either sees the pre-update or fully-updated record, never a torn write.
// Updates to different jobs never block each other.
type Store struct {
	root string

	createMu sync.Mutex // serializes Create so duplicate checks are race-free

	mu   sync.RWMutex // guards the jobs map, not the entries
	jobs map[string]*entry
}

// entry serializes updates to a single job.
type entry struct {
	mu  sync.Mutex
	job *Job
}

func NewStore(root string) *Store {
	return &Store{
		root: strings.TrimSpace(root),
		jobs: make(map[string]*entry),
	}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

func (s *Store) JobPath(jobID string) string {
	return filepath.Join(s.JobDir(jobID), "job.json")
}

// StdoutPath and StderrPath point inside the job's workspace so the logs
// travel with the rest of the job's files.
func StdoutPath(job *Job) string {
	return filepath.Join(job.WorkingDir, "stdout.log")
}

func StderrPath(job *Job) string {
	return filepath.Join(job.WorkingDir, "stderr.log")
}

func (s *Store) ensureRoot() error {
	if s.root == "" {
		return fmt.Errorf("job store root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Create durably persists a new job and then makes it visible in memory.
// Durability precedes visibility: a crash immediately after Create returns
// leaves a record the recovery scanner will find.
func (s *Store) Create(job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	jobID := strings.TrimSpace(job.ID)
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	if len(job.Command) == 0 {
		return fmt.Errorf("job command is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	s.mu.RLock()
	_, exists := s.jobs[jobID]
	s.mu.RUnlock()
	if exists {
		return apperrors.DuplicateJob(jobID)
	}
	if _, err := os.Stat(s.JobPath(jobID)); err == nil {
		// A record on disk that was never loaded still counts as a duplicate.
		return apperrors.DuplicateJob(jobID)
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}

	stored := job.Clone()
	if err := s.write(stored); err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs[jobID] = &entry{job: stored}
	s.mu.Unlock()
	return nil
}

// Update applies mutate to a copy of the record, validates the status
// transition, durably persists the result, and only then swaps it into
// memory. The updated record is returned.
func (s *Store) Update(jobID string, mutate func(*Job) error) (*Job, error) {
	e, err := s.entryFor(jobID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.job.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if next.ID != e.job.ID {
		return nil, fmt.Errorf("job id is immutable")
	}
	if !canTransition(e.job.Status, next.Status) {
		return nil, fmt.Errorf("invalid status transition %s -> %s for job %s", e.job.Status, next.Status, jobID)
	}

	if err := s.write(next); err != nil {
		return nil, err
	}
	e.job = next
	return next.Clone(), nil
}

// Get returns a copy of the record for jobID.
func (s *Store) Get(jobID string) (*Job, error) {
	e, err := s.entryFor(jobID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// List returns jobs newest-first, optionally filtered by status.
// limit <= 0 means no cap. An empty result set is not an error.
func (s *Store) List(filter Status, limit int) []Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		j := e.job.Clone()
		e.mu.Unlock()
		if filter != "" && j.Status != filter {
			continue
		}
		out = append(out, *j)
	}

	sort.Slice(out, func(i, j int) bool {
		return jobSortTime(out[i]).After(jobSortTime(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LoadAll rebuilds the in-memory index from every job.json under the root.
// Unparseable records are skipped and reported in the returned slice; they
// never abort the scan. Intended for the recovery scanner, before any
// concurrent access exists.
func (s *Store) LoadAll() (loaded int, skipped []string, err error) {
	if err := s.ensureRoot(); err != nil {
		return 0, nil, err
	}
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, nil, fmt.Errorf("read jobs root: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		jobID := de.Name()
		job, err := s.readJob(jobID)
		if err != nil {
			skipped = append(skipped, jobID)
			continue
		}
		s.jobs[jobID] = &entry{job: job}
		loaded++
	}
	return loaded, skipped, nil
}

// Remove deletes a job's record and workspace from disk and memory.
// Only terminal jobs may be removed; retention policy lives with the caller.
func (s *Store) Remove(jobID string) error {
	e, err := s.entryFor(jobID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.job.Status.Terminal() {
		return fmt.Errorf("job %s is not terminal (status=%s)", jobID, e.job.Status)
	}
	if err := os.RemoveAll(s.JobDir(jobID)); err != nil {
		return fmt.Errorf("remove job dir: %w", err)
	}
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
	return nil
}

func (s *Store) entryFor(jobID string) (*entry, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	s.mu.RLock()
	e, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound(jobID)
	}
	return e, nil
}

func (s *Store) readJob(jobID string) (*Job, error) {
	b, err := os.ReadFile(s.JobPath(jobID))
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("job.json is empty")
	}
	var job Job
	if err := json.Unmarshal([]byte(trimmed), &job); err != nil {
		return nil, fmt.Errorf("parse job.json: %w", err)
	}
	return &job, nil
}

// write persists job.json via write-to-temp-then-atomic-rename so a crash
// mid-write never leaves a corrupt or partially-written record.
func (s *Store) write(job *Job) error {
	jobDir := s.JobDir(job.ID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	b, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, "job.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}
	if err := os.Rename(tmpName, s.JobPath(job.ID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

func jobSortTime(j Job) time.Time {
	if j.StartTime != nil {
		return j.StartTime.UTC()
	}
	return j.CreatedAt.UTC()
}
