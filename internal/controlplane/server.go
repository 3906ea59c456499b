package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/missionctl/internal/logging"
	"github.com/fentz26/missionctl/internal/models"
)

// Pinger reports whether a backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server provides the read-only HTTP API.
type Server struct {
	service *Service
	db      Pinger
	addr    string
	server  *http.Server
	logger  *logging.Logger
}

// NewServer creates a new HTTP server. db may be nil.
func NewServer(service *Service, db Pinger, addr string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		service: service,
		db:      db,
		addr:    addr,
		logger:  logger.WithComponent("api"),
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/runs/", s.handleTaskRuns)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("api listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// RunsResponse is the snapshot, with Error set when the runner has not
// completed its first load.
type RunsResponse struct {
	*models.RunnerState
	Error string `json:"error,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	OK          bool   `json:"ok"`
	Initialized bool   `json:"initialized"`
	LastLoopAt  int64  `json:"lastLoopAt"`
	DB          string `json:"db,omitempty"`
	Time        string `json:"time"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap, err := s.service.Snapshot()
	if errors.Is(err, ErrNotInitialized) {
		writeJSON(w, http.StatusOK, RunsResponse{RunnerState: s.service.Defaults(), Error: err.Error()})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{RunnerState: snap})
}

// handleTaskRuns handles GET /runs/{taskId}
func (s *Server) handleTaskRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	taskID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if taskID == "" || strings.Contains(taskID, "/") {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}

	runs, err := s.service.TaskRuns(taskID)
	switch {
	case errors.Is(err, ErrNotInitialized):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrTaskNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, runs)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{OK: true, Time: time.Now().UTC().Format(time.RFC3339)}
	if snap, err := s.service.Snapshot(); err == nil {
		health.Initialized = true
		health.LastLoopAt = int64(snap.LastLoopAt)
	}

	status := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			health.OK = false
			health.DB = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			health.DB = "ok"
		}
	}
	writeJSON(w, status, health)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
