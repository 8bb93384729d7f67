package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/me/supertask/internal/engine"
	"github.com/me/supertask/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondEngineError maps an engine error for task name onto a status and
// error code. Errors the engine does not classify get fallback.
func respondEngineError(w http.ResponseWriter, reqID, name string, err error, fallback int) {
	switch {
	case errors.Is(err, model.ErrTaskNotFound):
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", name))
	case errors.Is(err, model.ErrDuplicateTask):
		respondError(w, reqID, http.StatusConflict, &model.APIError{Code: model.ErrConflict, Message: err.Error()})
	case errors.Is(err, model.ErrCompile):
		respondError(w, reqID, http.StatusUnprocessableEntity, model.NewValidationError(err.Error(),
			model.FieldError{Field: "source", Message: "does not compile"}))
	case errors.Is(err, engine.ErrStopped):
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
	case fallback < http.StatusInternalServerError:
		respondError(w, reqID, fallback, model.NewValidationError(err.Error()))
	default:
		respondError(w, reqID, fallback, &model.APIError{Code: model.ErrInternal, Message: err.Error()})
	}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	body, err := json.Marshal(resp)
	if err != nil {
		// Task results are filtered to plain values, so only a bug lands here.
		status = http.StatusInternalServerError
		resp.Data, resp.Pagination, resp.Status = nil, nil, "error"
		resp.Error = &model.APIError{Code: model.ErrInternal, Message: "encode response: " + err.Error()}
		body, _ = json.Marshal(resp)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
