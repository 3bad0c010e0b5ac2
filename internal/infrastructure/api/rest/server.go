// Package rest implements the task HTTP surface: create/list/get/stop,
// plus the two convenience endpoints a dashboard polls between
// WebSocket events (the recorded screenshot image, the graph snapshot).
// Routing follows
// the teacher's own net/http.ServeMux method-pattern style, no router
// dependency.
package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/smilemakc/degflow/internal/application/registry"
)

// Server is the REST transport; it owns nothing but a Registry handle and
// a logger, matching the teacher's own thin-server-over-a-store shape.
type Server struct {
	registry *registry.Registry
	mux      *http.ServeMux
	logger   *slog.Logger
}

// NewServer builds a Server wired to reg.
func NewServer(reg *registry.Registry, logger *slog.Logger) *Server {
	s := &Server{registry: reg, mux: http.NewServeMux(), logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	s.mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("POST /api/v1/tasks/{id}/stop", s.handleStopTask)
	s.mux.HandleFunc("GET /api/v1/tasks/{id}/screenshot", s.handleScreenshot)
	s.mux.HandleFunc("GET /api/v1/tasks/{id}/graph", s.handleGraph)
}

// ServeHTTP lets Server itself serve as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("request received", "method", r.Method, "path", r.URL.Path)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type createTaskRequest struct {
	Description       string            `json:"description"`
	StepBudgetSeconds int               `json:"step_budget_seconds,omitempty"`
	RequiredData      map[string]string `json:"required_data,omitempty"`
	Persona           string            `json:"persona,omitempty"`
	Environment       string            `json:"environment,omitempty"`
	AllowedActions    []string          `json:"allowed_actions"`
	PriorityLevel     int               `json:"priority_level,omitempty"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	taskID, err := s.registry.Create(req.Description, registry.CreateOptions{
		StepBudgetSeconds: req.StepBudgetSeconds,
		RequiredData:      req.RequiredData,
		Persona:           req.Persona,
		Environment:       req.Environment,
		AllowedActions:    req.AllowedActions,
		PriorityLevel:     req.PriorityLevel,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.encode(w, createTaskResponse{TaskID: taskID})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	executions := s.registry.List()
	w.Header().Set("Content-Type", "application/json")
	s.encode(w, executions)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.encode(w, exec)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Stop(id) {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	for _, node := range exec.Graph {
		if node.Action.ToolName == "take_screenshot" && node.LastObservation != nil && node.LastObservation.ScreenshotPath != "" {
			http.ServeFile(w, r, node.LastObservation.ScreenshotPath)
			return
		}
	}
	s.writeError(w, http.StatusNotFound, "no screenshot recorded for this task")
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, ok := s.registry.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.encode(w, map[string]any{"root_id": exec.RootID, "nodes": exec.Graph})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	s.encode(w, map[string]string{"error": message})
}

func (s *Server) encode(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
