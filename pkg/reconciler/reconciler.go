// Package reconciler applies a completed job's declared state patch into
// shared application state, exactly once.
package reconciler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/arcfield/jobforge/internal/errors"
	"github.com/arcfield/jobforge/pkg/appstate"
	"github.com/arcfield/jobforge/pkg/jobstore"
)

// Reconciler reads result files from job workspaces and writes extracted
// values into the shared state store, marking each job's patch applied on
// its durable record.
type Reconciler struct {
	jobs   *jobstore.Store
	state  *appstate.Store
	logger *zap.Logger
}

func New(jobs *jobstore.Store, state *appstate.Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{jobs: jobs, state: state, logger: logger}
}

// Apply reads the job's declared result file, optionally drills into it via
// the patch pointer, writes the value into shared state, and marks
// state_applied=true on the job record.
//
// On any failure the job stays completed with state_applied=false so a later
// ReplayMissed can retry. Apply is a no-op for jobs without a patch or with
// the patch already applied.
func (r *Reconciler) Apply(job *jobstore.Job) error {
	if job == nil || job.StatePatch == nil || job.StateApplied {
		return nil
	}
	if job.Status != jobstore.StatusCompleted {
		return fmt.Errorf("job %s is not completed (status=%s)", job.ID, job.Status)
	}

	patch := job.StatePatch
	resultPath := patch.ResultFile
	if !filepath.IsAbs(resultPath) {
		resultPath = filepath.Join(job.WorkingDir, resultPath)
	}

	b, err := os.ReadFile(resultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.ResultFileMissing(job.ID, patch.ResultFile)
		}
		return fmt.Errorf("read result file: %w", err)
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("parse result file %s: %w", patch.ResultFile, err)
	}

	value := doc
	if patch.Pointer != "" {
		value, err = resolvePointer(doc, patch.Pointer)
		if err != nil {
			return apperrors.PointerNotFound(job.ID, patch.Pointer)
		}
	}

	if err := r.state.Set(patch.Field, value); err != nil {
		return fmt.Errorf("persist state field %s: %w", patch.Field, err)
	}

	// The shared-state write landed; only now flip the applied marker.
	if _, err := r.jobs.Update(job.ID, func(j *jobstore.Job) error {
		j.StateApplied = true
		return nil
	}); err != nil {
		return fmt.Errorf("mark state applied: %w", err)
	}

	r.logger.Info("applied state patch",
		zap.String("job_id", job.ID),
		zap.String("field", patch.Field),
		zap.String("result_file", patch.ResultFile))
	return nil
}

// ReplayMissed applies the patch of every completed job whose patch has not
// been applied yet. Errors are collected per job, never raised: a job whose
// result file is genuinely corrupt keeps failing on each restart without
// crashing the scan.
func (r *Reconciler) ReplayMissed(jobs []jobstore.Job) map[string]error {
	failed := make(map[string]error)
	for i := range jobs {
		j := &jobs[i]
		if j.Status != jobstore.StatusCompleted || j.StatePatch == nil || j.StateApplied {
			continue
		}
		if err := r.Apply(j); err != nil {
			failed[j.ID] = err
			r.logger.Warn("state patch replay failed",
				zap.String("job_id", j.ID),
				zap.Error(err))
		}
	}
	return failed
}

// resolvePointer walks a slash-separated path of object keys and array
// indices through a decoded JSON document.
func resolvePointer(doc any, pointer string) (any, error) {
	cur := doc
	for _, part := range strings.Split(strings.Trim(pointer, "/"), "/") {
		if part == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("key %q not found", part)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range", part)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T with %q", cur, part)
		}
	}
	return cur, nil
}
