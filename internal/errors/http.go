package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPErrorResponse is the JSON envelope written for every API-level error.
//
// The shape is stable: {"error":{"code","message","request_id"}}.
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

// HTTPErrorBody is the inner error object of HTTPErrorResponse.
type HTTPErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Code returns the stable upper-snake error code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateJob):
		return "DUPLICATE_JOB"
	case errors.Is(err, ErrWorkspaceMissing):
		return "WORKSPACE_MISSING"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrNotReady):
		return "NOT_READY"
	case errors.Is(err, ErrAlreadyTerminal):
		return "ALREADY_TERMINAL"
	case errors.Is(err, ErrResultFileMissing):
		return "RESULT_FILE_MISSING"
	case errors.Is(err, ErrPointerNotFound):
		return "POINTER_NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps err to its HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrDuplicateJob):
		return http.StatusConflict
	case errors.Is(err, ErrWorkspaceMissing):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrResultFileMissing), errors.Is(err, ErrPointerNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithError writes err as the standard JSON envelope.
func RespondWithError(w http.ResponseWriter, requestID string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorBody{
			Code:      Code(err),
			Message:   err.Error(),
			RequestID: requestID,
		},
	})
}
