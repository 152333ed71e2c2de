// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AdminRoles may manage workflow definitions
	AdminRoles []string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		AdminRoles:   []string{"ADMIN"},
	}
}

// Services are the application services exposed over HTTP
type Services struct {
	Catalog    service.CatalogService
	Workflows  service.WorkflowService
	Admissions service.AdmissionService
	Leaves     service.LeaveService
	Exporter   port.TrailExporter
	Registry   *dispatcher.Registry
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(tracingMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"actor_id", c.GetHeader(HeaderActorID),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1", actorMiddleware())
	{
		defs := api.Group("/definitions", requireRole(s.config.AdminRoles...))
		defs.POST("", h.CreateDefinition)
		defs.GET("/:id", h.GetDefinition)
		defs.POST("/:id/steps", h.AddSteps)
		defs.POST("/:id/deactivate", h.DeactivateDefinition)
		api.GET("/dispatcher/handlers", requireRole(s.config.AdminRoles...), h.ListDomainHandlers)

		wf := api.Group("/workflows")
		wf.POST("", h.Initiate)
		wf.GET("/pending", h.PendingActions)
		wf.GET("/active", h.FindActive)
		wf.GET("/instances/:id", h.GetInstance)
		wf.GET("/instances/:id/actions", h.ListActions)
		wf.POST("/instances/:id/actions", h.PerformAction)
		wf.POST("/instances/:id/close", h.CloseWorkflow)
		wf.GET("/instances/:id/trail.xlsx", h.ExportTrail)

		adm := api.Group("/admissions")
		adm.POST("", h.CreateAdmission)
		adm.GET("/:id", h.GetAdmission)
		adm.GET("/:id/history", h.AdmissionHistory)
		adm.POST("/:id/submit", h.SubmitAdmission)
		adm.POST("/:id/transitions", h.TransitionAdmission)
		adm.POST("/:id/panel", h.AssignPanel)
		adm.POST("/:id/accept", h.AcceptOffer)
		adm.POST("/:id/documents/verify", h.VerifyDocuments)
		adm.POST("/:id/payments", h.InitiatePayment)
		adm.POST("/:id/allocate", h.AllocateSeat)
		adm.POST("/:id/cancel", h.CancelAdmission)
		api.POST("/payments/:id/complete", h.CompletePayment)

		api.POST("/leaves", h.ApplyLeave)
		api.GET("/leaves/:id", h.GetLeave)
		api.GET("/employees/:id/leave-balance", h.LeaveBalance)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
