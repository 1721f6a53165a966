package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
	"github.com/rehabflow-backend/internal/middleware"
	"github.com/rehabflow-backend/internal/progress"
)

// PipelineRunner triggers clinical analysis runs.
type PipelineRunner interface {
	Run(ctx context.Context, assessmentID, ownerID string) (*domain.ClinicalAnalysis, error)
	RunObserved(ctx context.Context, assessmentID, ownerID string, observer domain.StageObserver) (*domain.ClinicalAnalysis, error)
}

// AnalysisReader serves the latest persisted analysis for an assessment.
type AnalysisReader interface {
	GetLatest(ctx context.Context, assessmentID, ownerID string) (*domain.ClinicalAnalysis, error)
}

// VideoResolver answers keyword searches with an embeddable video.
type VideoResolver interface {
	Resolve(ctx context.Context, keywords []string) (*domain.VideoMatch, error)
}

// HealthProbe checks one dependency for the health endpoint.
type HealthProbe func(ctx context.Context) error

// Deps bundles everything the HTTP layer delegates to.
type Deps struct {
	Pipeline PipelineRunner
	Analyses AnalysisReader
	Videos   VideoResolver
	Progress progress.Store

	// Auth guards the protected route groups. Tests inject a stub here.
	Auth gin.HandlerFunc

	// Probes are reported by /health, keyed by dependency name.
	Probes map[string]HealthProbe
}

// Server represents the HTTP server.
type Server struct {
	cfg      *domain.Config
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
	deps     Deps
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP server instance.
func NewServer(cfg *domain.Config, logger *logrus.Logger, deps Deps) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		deps:   deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.Server.AllowedOrigins),
		},
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"addr":        addr,
		"environment": s.cfg.Environment,
	}).Info("HTTP server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	ai := s.router.Group("/ai", s.deps.Auth)
	{
		ai.POST("/analyze/:assessmentID", s.handleAnalyze)
		ai.GET("/analyze/:assessmentID/stream", s.handleAnalyzeStream)
		ai.GET("/analysis/:assessmentID", s.handleGetAnalysis)
	}

	prog := s.router.Group("/progress", s.deps.Auth)
	{
		prog.POST("/complete-day", s.handleCompleteDay)
		prog.GET("/completed-days/:assessmentID", s.handleCompletedDays)
	}

	videos := s.router.Group("/videos")
	{
		videos.GET("/search", s.handleVideoSearch)
		videos.POST("/search", s.handleVideoSearch)
	}
}

// handleHealth reports service status plus a probe result per dependency.
func (s *Server) handleHealth(c *gin.Context) {
	response := gin.H{
		"status":      "ok",
		"service":     "rehabflow-backend",
		"environment": s.cfg.Environment,
	}

	healthy := true
	if len(s.deps.Probes) > 0 {
		checks := gin.H{}
		for name, probe := range s.deps.Probes {
			if err := probe(c.Request.Context()); err != nil {
				checks[name] = err.Error()
				healthy = false
			} else {
				checks[name] = "ok"
			}
		}
		response["checks"] = checks
	}

	if !healthy {
		response["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// classifyError maps a pipeline or store error to an HTTP status and a
// client-safe payload. Internal details stay in the logs.
func (s *Server) classifyError(c *gin.Context, err error) (int, *domain.APIError) {
	correlationID := c.GetString("correlation_id")

	var validationErr *domain.ValidationError
	var upstreamErr *domain.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, domain.NewAPIError(
			domain.ErrCodeInvalidInput, validationErr.Message, validationErr.Field, correlationID)

	case errors.Is(err, domain.ErrAccessDenied):
		return http.StatusForbidden, domain.NewAPIError(
			domain.ErrCodeAccessDenied, "Assessment not found or access denied", "", correlationID)

	case errors.Is(err, domain.ErrInferenceTimeout):
		return http.StatusGatewayTimeout, domain.NewAPIError(
			domain.ErrCodeTimeout, "Analysis timed out, please try again", "", correlationID)

	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, domain.NewAPIError(
			domain.ErrCodeUpstreamError, "Analysis service returned an error",
			fmt.Sprintf("upstream status %d", upstreamErr.StatusCode), correlationID)

	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway, domain.NewAPIError(
			domain.ErrCodeUpstreamError, "Could not retrieve assessment images", "", correlationID)

	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.NewAPIError(
			domain.ErrCodeNotFound, "Resource not found", "", correlationID)

	default:
		s.logger.WithFields(logrus.Fields{
			"error":          err.Error(),
			"path":           c.Request.URL.Path,
			"correlation_id": correlationID,
		}).Error("Request failed")
		return http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrCodeInternalServer, "Internal server error", "", correlationID)
	}
}

func (s *Server) renderError(c *gin.Context, err error) {
	status, apiErr := s.classifyError(c, err)
	c.JSON(status, apiErr)
}

// checkOrigin mirrors the CORS allow-list for websocket upgrades. Requests
// without an Origin header come from non-browser clients and pass.
func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
