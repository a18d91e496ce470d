package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reelforge/internal/api"
	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/timeline"
)

// maxRequestBytes bounds edit request payloads.
const maxRequestBytes = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", srv.handleJobs)
	mux.HandleFunc("/api/jobs/", srv.handleJob)
	mux.HandleFunc("/api/fonts", srv.handleFonts)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/storage/clear", srv.handleClearStorage)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
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
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
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

// addr returns the bound listen address, useful when binding to port 0.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "cannot read request body")
		return
	}
	if len(payload) > maxRequestBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "validation", "request body too large")
		return
	}

	req, err := timeline.ParseRequest(payload)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	job, err := s.daemon.scheduler.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var states []queue.Status
	for _, value := range r.URL.Query()["state"] {
		state, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "validation", fmt.Sprintf("unknown state %q", value))
			return
		}
		states = append(states, state)
	}

	jobs, err := s.daemon.store.List(r.Context(), states...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	idStr, action, _ := strings.Cut(rest, "/")

	// Collection-level maintenance shares the /api/jobs/ prefix.
	if action == "" && r.Method == http.MethodPost {
		switch idStr {
		case "retry":
			s.handleRetryAll(w, r)
			return
		case "clear":
			s.handleClear(w, r)
			return
		}
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "validation", "invalid job id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.handleDescribe(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		s.handleRemove(w, r, id)
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleCancel(w, r, id)
	case action == "retry" && r.Method == http.MethodPost:
		s.handleRetry(w, r, id)
	case action == "download" && r.Method == http.MethodGet:
		s.handleDownload(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "", "not found")
	}
}

func (s *apiServer) handleDescribe(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %d does not exist", id))
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.daemon.scheduler.Cancel(r.Context(), id); err != nil {
		s.writeServiceError(w, err)
		return
	}
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil || job == nil {
		s.writeJSON(w, http.StatusOK, api.JobResponse{})
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request, id int64) {
	retried, err := s.daemon.store.RetryFailed(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %d does not exist", id))
		return
	}
	if retried == 0 {
		s.writeError(w, http.StatusConflict, "validation",
			fmt.Sprintf("job %d is %s, only failed jobs can be retried", id, job.State))
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	retried, err := s.daemon.store.RetryFailed(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobsRetriedResponse{Retried: retried})
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %d does not exist", id))
		return
	}
	if job.State == queue.StatusQueued || job.State == queue.StatusRunning {
		s.writeError(w, http.StatusConflict, "validation",
			fmt.Sprintf("job %d is %s, cancel it before removing", id, job.State))
		return
	}
	if _, err := s.daemon.store.Remove(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *apiServer) handleClear(w http.ResponseWriter, r *http.Request) {
	var removed int64
	var err error
	if r.URL.Query().Get("scope") == "all" {
		removed, err = s.daemon.store.Clear(r.Context())
	} else {
		removed, err = s.daemon.store.ClearFinished(r.Context())
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobsClearedResponse{Removed: removed})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("job %d does not exist", id))
		return
	}
	if job.State != queue.StatusSucceeded {
		s.writeError(w, http.StatusConflict, "validation",
			fmt.Sprintf("job %d is %s, artifact unavailable", id, job.State))
		return
	}

	artifact, err := s.daemon.outputs.Resolve(job.Token)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	http.ServeFile(w, r, artifact.Path)
}

func (s *apiServer) handleFonts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	fonts, err := s.daemon.assets.Catalog()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	views := make([]api.FontView, 0, len(fonts))
	for _, font := range fonts {
		views = append(views, api.FontView{Name: font.Name, File: font.File})
	}
	s.writeJSON(w, http.StatusOK, api.FontListResponse{Fonts: views})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())

	depViews := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		depViews[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}

	var outputsView api.OutputsView
	if artifacts, err := s.daemon.outputs.List(); err == nil {
		outputsView.Count = len(artifacts)
		for _, artifact := range artifacts {
			outputsView.TotalBytes += artifact.SizeBytes
		}
	}

	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		JobDBPath:    status.JobDBPath,
		LockFilePath: status.LockFilePath,
		Queue:        api.FromHealth(status.Queue),
		Outputs:      outputsView,
		Dependencies: depViews,
	})
}

func (s *apiServer) handleClearStorage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	removed, freed, err := s.daemon.outputs.ClearStorage(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClearStorageResponse{RemovedFiles: removed, FreedBytes: freed})
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := services.Kind(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrOverloaded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case services.IsRequestFault(err):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	s.writeError(w, status, kind, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}
