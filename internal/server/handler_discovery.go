package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "supertask API",
		Version:     "v1",
		Description: "Task registration and execution engine",
		Endpoints: []endpointInfo{
			{"/api/v1/tasks", []string{"GET", "POST"}, "List tasks (?kind, ?limit, ?offset) or register a source task"},
			{"/api/v1/tasks/{name}", []string{"GET", "PUT", "DELETE"}, "Single task detail, settings and removal"},
			{"/api/v1/tasks/{name}/invoke", []string{"POST"}, "Invoke a task and wait for its callback (?timeout)"},
			{"/api/v1/engine", []string{"GET", "PUT"}, "Engine tunables and load"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
