package server

import (
	"encoding/json"
	"net/http"

	"github.com/me/supertask/pkg/model"
)

func (s *Server) handleGetEngine(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.engine.Info())
}

func (s *Server) handleUpdateEngine(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.EngineUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if err := s.engine.Update(req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		return
	}
	s.logger.Info("engine updated", "request_id", reqID)
	respondOK(w, reqID, s.engine.Info())
}
