package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/task"
	"github.com/me/supertask/pkg/model"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	q := r.URL.Query()

	opts := model.DefaultListOptions()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid query",
				model.FieldError{Field: "limit", Message: "must be an integer"}))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid query",
				model.FieldError{Field: "offset", Message: "must be an integer"}))
			return
		}
		opts.Offset = n
	}
	if v := q.Get("kind"); v != "" {
		k, err := model.ParseKind(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid query",
				model.FieldError{Field: "kind", Message: err.Error()}))
			return
		}
		opts.Kind = k
	}

	tasks := s.engine.List()
	if opts.Kind != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Kind == opts.Kind {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	page, pg := model.Page(tasks, opts)
	respondList(w, reqID, page, pg)
}

func (s *Server) handleRegisterTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var details []model.FieldError
	if strings.TrimSpace(req.Name) == "" {
		details = append(details, model.FieldError{Field: "name", Message: "required"})
	}
	if strings.TrimSpace(req.Source) == "" {
		details = append(details, model.FieldError{Field: "source", Message: "required"})
	}
	if req.Kind != "" && req.Kind != model.KindForeign {
		details = append(details, model.FieldError{Field: "kind", Message: "only foreign source tasks can be registered over the API"})
	}
	if req.Permission != nil && !req.Permission.Valid() {
		details = append(details, model.FieldError{Field: "permission", Message: "unknown tier"})
	}
	if len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid task", details...))
		return
	}
	if req.Lang == "" {
		req.Lang = "js"
	}

	h, err := s.engine.RegisterForeign(req.Name, task.Source{Lang: req.Lang, Text: req.Source})
	if err != nil {
		respondEngineError(w, reqID, req.Name, err, http.StatusBadRequest)
		return
	}
	// Permission was validated above, so Update cannot fail.
	_ = h.Update(model.UpdateRequest{
		Permission: req.Permission,
		Module:     req.Module,
		Priority:   req.Priority,
		Context:    req.Context,
	})

	// Reject source that does not compile instead of failing its first call.
	if err := h.Precompile(nil); err != nil {
		s.engine.Remove(req.Name)
		respondEngineError(w, reqID, req.Name, err, http.StatusUnprocessableEntity)
		return
	}

	s.logger.Info("task registered over api", "name", req.Name, "lang", req.Lang, "request_id", reqID)
	respondCreated(w, reqID, h.Info())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	h := s.engine.Get(name)
	if h == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", name))
		return
	}
	respondOK(w, reqID, h.Info())
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	h := s.engine.Get(name)
	if h == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", name))
		return
	}

	var req model.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if err := h.Update(req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}
	respondOK(w, reqID, h.Info())
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	if !s.engine.Remove(name) {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("task", name))
		return
	}
	respondOK(w, reqID, map[string]any{"name": name, "removed": true})
}

func (s *Server) handleInvokeTask(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	name := chi.URLParam(r, "name")

	var req model.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	timeout := s.invokeTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("Invalid query",
				model.FieldError{Field: "timeout", Message: err.Error()}))
			return
		}
		timeout = d
	}

	done := make(chan model.InvokeResult, 1)
	cb := func(err error, results ...any) {
		res := model.InvokeResult{Results: plainResults(results)}
		if err != nil {
			res.Error = err.Error()
		}
		select {
		case done <- res:
		default:
		}
	}

	start := time.Now()
	if err := s.engine.Apply(name, capability.Context(req.Context), req.Args, cb); err != nil {
		annotate(r.Context(), "outcome", "rejected")
		respondEngineError(w, reqID, name, err, http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	select {
	case res := <-done:
		outcome := "ok"
		if res.Error != "" {
			outcome = "task_error"
		}
		annotate(r.Context(), "outcome", outcome, "results", len(res.Results), "wait", time.Since(start).String())
		respondOK(w, reqID, res)
	case <-ctx.Done():
		annotate(r.Context(), "outcome", "timeout", "wait", timeout.String())
		respondError(w, reqID, http.StatusGatewayTimeout, &model.APIError{
			Code:    model.ErrTimeout,
			Message: "task " + name + " did not call back within " + timeout.String(),
		})
	}
}

// plainResults keeps callback results positional, replacing values that
// cannot be sent as JSON with nil.
func plainResults(results []any) []any {
	out := make([]any, len(results))
	for i, v := range results {
		if d, ok := capability.Plain(v); ok {
			out[i] = d
		}
	}
	return out
}

func parseTimeout(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}
