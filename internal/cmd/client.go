package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/arcfield/jobforge/internal/errors"
	"github.com/arcfield/jobforge/pkg/jobstore"
	"github.com/arcfield/jobforge/pkg/orchestrator"
	"github.com/arcfield/jobforge/pkg/submission"
)

// apiClient is the thin HTTP client the CLI uses to reach a running
// `jobforge serve` daemon for mutating operations.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(strings.TrimSpace(base), "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) submit(m *submission.Manifest) (*jobstore.Job, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.base+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("reach orchestrator at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeAPIError(resp)
	}
	var job jobstore.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &job, nil
}

func (c *apiClient) terminate(jobID string) (*jobstore.Job, error) {
	req, err := http.NewRequest(http.MethodDelete, c.base+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach orchestrator at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var job jobstore.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode terminate response: %w", err)
	}
	return &job, nil
}

func (c *apiClient) results(jobID string) (*orchestrator.ResultPayload, error) {
	resp, err := c.http.Get(c.base + "/jobs/" + jobID + "/results")
	if err != nil {
		return nil, fmt.Errorf("reach orchestrator at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var payload orchestrator.ResultPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode results response: %w", err)
	}
	return &payload, nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var envelope apperrors.HTTPErrorResponse
	if err := json.Unmarshal(b, &envelope); err == nil && envelope.Error.Code != "" {
		return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("orchestrator returned %s", resp.Status)
}
