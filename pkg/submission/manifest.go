// Package submission loads job submission manifests.
//
// A manifest names the command to run, the pre-populated workspace, and
// optionally a state patch mapping one result file into shared application
// state.
package submission

import (
	"fmt"
	"strings"

	"github.com/arcfield/jobforge/pkg/jobstore"
	"github.com/arcfield/jobforge/pkg/orchestrator"
)

// Manifest is one job submission, parsed from YAML or JSON.
type Manifest struct {
	// ID optionally pins the job id; one is generated when empty.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Name is an optional human label shown in job listings.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Command is the executable plus arguments.
	Command []string `yaml:"command" json:"command"`

	// Workspace is the job working directory. It must exist and be
	// populated with the job's input files before submission.
	Workspace string `yaml:"workspace" json:"workspace"`

	// ResultGlobs optionally names which workspace files are results.
	ResultGlobs []string `yaml:"result_globs,omitempty" json:"result_globs,omitempty"`

	// StatePatch optionally declares the result-to-state mapping.
	StatePatch *StatePatchSpec `yaml:"state_patch,omitempty" json:"state_patch,omitempty"`
}

// StatePatchSpec mirrors jobstore.StatePatch in manifest form.
type StatePatchSpec struct {
	Field      string `yaml:"field" json:"field"`
	ResultFile string `yaml:"result_file" json:"result_file"`
	Pointer    string `yaml:"pointer,omitempty" json:"pointer,omitempty"`
}

// Validate checks the manifest for structural problems.
func (m *Manifest) Validate() error {
	if len(m.Command) == 0 {
		return fmt.Errorf("manifest: command is required")
	}
	for i, arg := range m.Command {
		if i == 0 && strings.TrimSpace(arg) == "" {
			return fmt.Errorf("manifest: command executable is empty")
		}
	}
	if strings.TrimSpace(m.Workspace) == "" {
		return fmt.Errorf("manifest: workspace is required")
	}
	if p := m.StatePatch; p != nil {
		if strings.TrimSpace(p.Field) == "" {
			return fmt.Errorf("manifest: state_patch.field is required")
		}
		if strings.TrimSpace(p.ResultFile) == "" {
			return fmt.Errorf("manifest: state_patch.result_file is required")
		}
	}
	return nil
}

// SubmitRequest converts the manifest into an orchestrator submission.
func (m *Manifest) SubmitRequest() orchestrator.SubmitRequest {
	req := orchestrator.SubmitRequest{
		ID:          strings.TrimSpace(m.ID),
		Name:        strings.TrimSpace(m.Name),
		Command:     append([]string(nil), m.Command...),
		WorkingDir:  strings.TrimSpace(m.Workspace),
		ResultGlobs: append([]string(nil), m.ResultGlobs...),
	}
	if m.StatePatch != nil {
		req.StatePatch = &jobstore.StatePatch{
			Field:      strings.TrimSpace(m.StatePatch.Field),
			ResultFile: strings.TrimSpace(m.StatePatch.ResultFile),
			Pointer:    strings.TrimSpace(m.StatePatch.Pointer),
		}
	}
	return req
}
