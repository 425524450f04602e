// Package chi serves the tool surface over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vaultctx/internal/logger"
	healthuc "github.com/kailas-cloud/vaultctx/internal/usecase/health"
	"github.com/kailas-cloud/vaultctx/internal/usecase/retrieve"
	"github.com/kailas-cloud/vaultctx/internal/usecase/tools"
)

const maxBodyBytes = 2 << 20

// ToolExecutor lists and runs tools.
type ToolExecutor interface {
	List() []tools.Tool
	Execute(ctx context.Context, name string, args tools.Args) (tools.Result, error)
}

// StatsProvider exposes pipeline observability.
type StatsProvider interface {
	GetStats() retrieve.Stats
}

// HealthChecker runs component health checks.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// ExecuteRequest is the body of POST /tools/execute.
type ExecuteRequest struct {
	Tool      string     `json:"tool"`
	Arguments tools.Args `json:"arguments"`
}

// ToolListResponse is the body of GET /tools.
type ToolListResponse struct {
	Tools []tools.Tool `json:"tools"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  healthuc.Status                 `json:"status"`
	Checks  map[string]healthuc.CheckResult `json:"checks"`
	Version string                          `json:"version,omitempty"`
}

// Server holds the HTTP handlers.
type Server struct {
	tools         ToolExecutor
	stats         StatsProvider
	health        HealthChecker
	version       string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates a Server.
func NewServer(toolExec ToolExecutor, stats StatsProvider, health HealthChecker, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		tools:         toolExec,
		stats:         stats,
		health:        health,
		version:       version,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/tools", s.ListTools)
	r.Post("/tools/execute", s.ExecuteTool)
	r.Post("/tools/{name}", s.ExecuteNamedTool)
	r.Get("/stats", s.Stats)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// ListTools handles GET /tools.
func (s *Server) ListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolListResponse{Tools: s.tools.List()})
}

// ExecuteTool handles POST /tools/execute.
func (s *Server) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "tool is required")
		return
	}
	s.execute(w, r, req.Tool, req.Arguments)
}

// ExecuteNamedTool handles POST /tools/{name} with the arguments object as the body.
func (s *Server) ExecuteNamedTool(w http.ResponseWriter, r *http.Request) {
	var args tools.Args
	if r.ContentLength != 0 && !s.decode(w, r, &args) {
		return
	}
	s.execute(w, r, chi.URLParam(r, "name"), args)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, name string, args tools.Args) {
	res, err := s.tools.Execute(r.Context(), name, args)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.GetStats())
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: report.Status, Checks: report.Checks, Version: s.version})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContextOr(ctx, s.logger)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			log.Debug("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
