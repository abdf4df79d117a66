package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"mimic/internal/api"
	"mimic/internal/config"
	"mimic/internal/logging"
	"mimic/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/clone/ingest", srv.handleIngest)
	mux.HandleFunc("POST /api/clone/create", srv.handleCreate)
	mux.HandleFunc("GET /api/clone/status/{id}", srv.handleCloneStatus)
	mux.HandleFunc("GET /api/clone/saved", srv.handleListSaved)
	mux.HandleFunc("GET /api/clone/saved/{id}", srv.handleGetSaved)
	mux.HandleFunc("PUT /api/clone/saved/{id}/use", srv.handleUseSaved)
	mux.HandleFunc("DELETE /api/clone/saved/{id}", srv.handleDeleteSaved)
	mux.HandleFunc("DELETE /api/clone/jobs/{jobId}", srv.handleCancelJob)
	mux.HandleFunc("GET /api/clone/credits", srv.handleCredits)
	mux.HandleFunc("GET /api/status", srv.handleStatus)

	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.Paths.APIToken, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	stats := make(map[string]int, len(status.CloneStats))
	for key, count := range status.CloneStats {
		stats[string(key)] = count
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Success:          true,
		Running:          status.Running,
		PID:              os.Getpid(),
		RegistryDBPath:   status.RegistryDBPath,
		LockFilePath:     status.LockFilePath,
		SynthesisReady:   status.SynthesisReady,
		OrchestratorBusy: status.ManagerRunning,
		CloneStats:       stats,
	})
}

func (s *apiServer) handleCredits(w http.ResponseWriter, r *http.Request) {
	if s.daemon.synth == nil {
		s.writeError(w, http.StatusServiceUnavailable, "synthesis provider not configured")
		return
	}
	credits, err := s.daemon.synth.Credits(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CreditsResponse{
		Success:   true,
		Remaining: credits.Remaining,
		Total:     credits.Total,
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Success: false, Error: message})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrState):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrConfiguration):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrTimeout), errors.Is(err, services.ErrTransient):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
