package jobstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/arcfield/jobforge/internal/errors"
)

func newTestJob(id string, created time.Time) *Job {
	return &Job{
		ID:         id,
		Command:    []string{"echo", "hello"},
		WorkingDir: "/tmp/" + id,
		Status:     StatusPending,
		CreatedAt:  created,
	}
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	job := newTestJob("job-1", now)
	job.Name = "demo"
	job.StatePatch = &StatePatch{Field: "survey_result", ResultFile: "out.json", Pointer: "totals/mean"}

	if err := s.Create(job); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := s.Get("job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ID != "job-1" {
		t.Fatalf("id mismatch: got=%q", got.ID)
	}
	if got.Status != StatusPending {
		t.Fatalf("status mismatch: got=%q", got.Status)
	}
	if got.StatePatch == nil || got.StatePatch.Pointer != "totals/mean" {
		t.Fatalf("state patch not persisted: %+v", got.StatePatch)
	}
	if got.StateApplied {
		t.Fatalf("state_applied should start false")
	}

	// The record must already be durable.
	if _, err := os.Stat(s.JobPath("job-1")); err != nil {
		t.Fatalf("job.json not written: %v", err)
	}
}

func TestStore_CreateRejectsDuplicate(t *testing.T) {
	s := NewStore(t.TempDir())

	now := time.Now().UTC()
	if err := s.Create(newTestJob("dup", now)); err != nil {
		t.Fatalf("first Create(): %v", err)
	}
	err := s.Create(newTestJob("dup", now))
	if !errors.Is(err, apperrors.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}

	// First record unaffected.
	got, err := s.Get("dup")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("first record mutated: status=%q", got.Status)
	}
}

func TestStore_CreateRejectsDuplicateOnDisk(t *testing.T) {
	root := t.TempDir()
	s1 := NewStore(root)
	if err := s1.Create(newTestJob("disk-dup", time.Now().UTC())); err != nil {
		t.Fatalf("Create(): %v", err)
	}

	// A fresh store that never loaded the record must still reject it.
	s2 := NewStore(root)
	err := s2.Create(newTestJob("disk-dup", time.Now().UTC()))
	if !errors.Is(err, apperrors.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Get("nope")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdatePersistsDurably(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	if err := s.Create(newTestJob("job-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create(): %v", err)
	}

	now := time.Now().UTC()
	updated, err := s.Update("job-1", func(j *Job) error {
		j.Status = StatusRunning
		j.PID = 4242
		j.StartTime = &now
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Status != StatusRunning || updated.PID != 4242 {
		t.Fatalf("update not applied: %+v", updated)
	}

	// Reload from disk to prove the write landed before visibility.
	fresh := NewStore(root)
	if _, _, err := fresh.LoadAll(); err != nil {
		t.Fatalf("LoadAll(): %v", err)
	}
	got, err := fresh.Get("job-1")
	if err != nil {
		t.Fatalf("Get() after reload: %v", err)
	}
	if got.Status != StatusRunning || got.PID != 4242 {
		t.Fatalf("durable record stale: %+v", got)
	}
}

func TestStore_UpdateRejectsInvalidTransition(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Create(newTestJob("job-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create(): %v", err)
	}

	end := time.Now().UTC()
	if _, err := s.Update("job-1", func(j *Job) error {
		j.Status = StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("pending->running: %v", err)
	}
	if _, err := s.Update("job-1", func(j *Job) error {
		j.Status = StatusCompleted
		j.EndTime = &end
		return nil
	}); err != nil {
		t.Fatalf("running->completed: %v", err)
	}

	// Terminal states are immutable.
	for _, next := range []Status{StatusPending, StatusRunning, StatusFailed, StatusTerminated} {
		_, err := s.Update("job-1", func(j *Job) error {
			j.Status = next
			return nil
		})
		if err == nil {
			t.Fatalf("completed->%s should be rejected", next)
		}
	}

	// Field-only updates on terminal records still work.
	if _, err := s.Update("job-1", func(j *Job) error {
		j.StateApplied = true
		return nil
	}); err != nil {
		t.Fatalf("field-only update on terminal record: %v", err)
	}
}

func TestStore_ListSortsNewestFirst(t *testing.T) {
	s := NewStore(t.TempDir())

	t1 := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	if err := s.Create(newTestJob("job-1", t1)); err != nil {
		t.Fatalf("Create job-1: %v", err)
	}
	if err := s.Create(newTestJob("job-2", t2)); err != nil {
		t.Fatalf("Create job-2: %v", err)
	}

	got := s.List("", 0)
	if len(got) != 2 {
		t.Fatalf("unexpected job count: %d", len(got))
	}
	if got[0].ID != "job-2" {
		t.Fatalf("expected newest first, got[0]=%q", got[0].ID)
	}
}

func TestStore_ListFilterAndLimit(t *testing.T) {
	s := NewStore(t.TempDir())

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Create(newTestJob(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	if _, err := s.Update("b", func(j *Job) error {
		j.Status = StatusRunning
		return nil
	}); err != nil {
		t.Fatalf("Update b: %v", err)
	}

	running := s.List(StatusRunning, 10)
	if len(running) != 1 || running[0].ID != "b" {
		t.Fatalf("status filter wrong: %+v", running)
	}

	limited := s.List("", 2)
	if len(limited) != 2 {
		t.Fatalf("limit not applied: %d", len(limited))
	}
	if limited[0].ID != "c" {
		t.Fatalf("expected newest first with limit, got[0]=%q", limited[0].ID)
	}

	if got := s.List(StatusFailed, 10); len(got) != 0 {
		t.Fatalf("empty result set should be empty slice, got %+v", got)
	}
}

func TestStore_LoadAllSkipsCorruptRecords(t *testing.T) {
	root := t.TempDir()
	s1 := NewStore(root)
	if err := s1.Create(newTestJob("good", time.Now().UTC())); err != nil {
		t.Fatalf("Create(): %v", err)
	}

	badDir := filepath.Join(root, "bad")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "job.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("write corrupt record: %v", err)
	}

	s2 := NewStore(root)
	loaded, skipped, err := s2.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll(): %v", err)
	}
	if loaded != 1 {
		t.Fatalf("loaded=%d, want 1", loaded)
	}
	if len(skipped) != 1 || skipped[0] != "bad" {
		t.Fatalf("skipped=%v, want [bad]", skipped)
	}
}

func TestStore_RemoveOnlyTerminal(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Create(newTestJob("job-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create(): %v", err)
	}

	if err := s.Remove("job-1"); err == nil {
		t.Fatalf("Remove of pending job should be rejected")
	}

	end := time.Now().UTC()
	if _, err := s.Update("job-1", func(j *Job) error {
		j.Status = StatusTerminated
		j.EndTime = &end
		return nil
	}); err != nil {
		t.Fatalf("Update(): %v", err)
	}
	if err := s.Remove("job-1"); err != nil {
		t.Fatalf("Remove(): %v", err)
	}
	if _, err := os.Stat(s.JobDir("job-1")); !os.IsNotExist(err) {
		t.Fatalf("job dir should be gone")
	}
	if _, err := s.Get("job-1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after Remove, got %v", err)
	}
}
