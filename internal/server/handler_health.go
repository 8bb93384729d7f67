package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Tasks     int    `json:"tasks"`
	Backlog   int    `json:"backlog"`
	InFlight  int    `json:"in_flight"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	info := s.engine.Info()
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Tasks:     info.Tasks,
		Backlog:   info.Backlog,
		InFlight:  info.InFlight,
	})
}
