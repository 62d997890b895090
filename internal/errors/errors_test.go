package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelClassification(t *testing.T) {
	cases := []struct {
		err      error
		sentinel error
	}{
		{DuplicateJob("j1"), ErrDuplicateJob},
		{WorkspaceMissing("j1", "/tmp/gone"), ErrWorkspaceMissing},
		{NotFound("j1"), ErrNotFound},
		{NotReady("j1", "running"), ErrNotReady},
		{AlreadyTerminal("j1", "completed"), ErrAlreadyTerminal},
		{ResultFileMissing("j1", "out.json"), ErrResultFileMissing},
		{PointerNotFound("j1", "a/b"), ErrPointerNotFound},
		{Orchestration("launcher.start", errors.New("boom")), ErrOrchestration},
	}
	for _, tc := range cases {
		assert.True(t, errors.Is(tc.err, tc.sentinel), "%v should match its sentinel", tc.err)
		assert.NotEmpty(t, tc.err.Error())
	}

	// Wrapping preserves classification.
	wrapped := fmt.Errorf("submit: %w", DuplicateJob("j1"))
	assert.True(t, errors.Is(wrapped, ErrDuplicateJob))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestCodeAndStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{DuplicateJob("j"), "DUPLICATE_JOB", http.StatusConflict},
		{WorkspaceMissing("j", "/w"), "WORKSPACE_MISSING", http.StatusBadRequest},
		{NotFound("j"), "NOT_FOUND", http.StatusNotFound},
		{NotReady("j", "pending"), "NOT_READY", http.StatusConflict},
		{AlreadyTerminal("j", "failed"), "ALREADY_TERMINAL", http.StatusConflict},
		{ResultFileMissing("j", "r"), "RESULT_FILE_MISSING", http.StatusUnprocessableEntity},
		{PointerNotFound("j", "p"), "POINTER_NOT_FOUND", http.StatusUnprocessableEntity},
		{errors.New("anything else"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, Code(tc.err))
		assert.Equal(t, tc.status, HTTPStatus(tc.err))
	}
}

func TestRespondWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, "req-123", NotFound("job-9"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "req-123", resp.Error.RequestID)
	assert.Contains(t, resp.Error.Message, "job-9")
}
