// Package http provides the HTTP adapter for the orchestrator surface.
// This is a thin layer that translates requests to application calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steiner385/MachShop-sub008/internal/application/service"
	"github.com/steiner385/MachShop-sub008/internal/application/workflow"
	"github.com/steiner385/MachShop-sub008/internal/infrastructure/export"
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
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config            ServerConfig
	httpServer        *http.Server
	router            *gin.Engine
	engine            workflow.Engine
	definitionService service.DefinitionService
	auditExporter     *export.AuditExporter
	logger            Logger
}

// NewServer creates a new HTTP server over the orchestrator surface
func NewServer(
	config ServerConfig,
	engine workflow.Engine,
	definitionService service.DefinitionService,
	auditExporter *export.AuditExporter,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:            config,
		router:            router,
		engine:            engine,
		definitionService: definitionService,
		auditExporter:     auditExporter,
		logger:            logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.engine, s.definitionService, s.auditExporter, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api/v1")
	{
		// Definitions
		api.POST("/definitions", handlers.PublishDefinition)
		api.GET("/definitions", handlers.ListDefinitions)
		api.GET("/definitions/:id", handlers.GetDefinition)

		// Instances
		api.POST("/instances", handlers.StartInstance)
		api.GET("/instances/:id", handlers.GetInstance)
		api.GET("/instances/:id/history", handlers.GetHistory)
		api.GET("/instances/:id/history/export", handlers.ExportHistory)
		api.POST("/instances/:id/hold", handlers.HoldInstance)
		api.POST("/instances/:id/resume", handlers.ResumeInstance)
		api.POST("/instances/:id/cancel", handlers.CancelInstance)
		api.POST("/instances/:id/signature", handlers.CaptureSignature)
		api.POST("/instances/:id/stages/:order/deadline", handlers.ExtendDeadline)

		// Assignments
		api.POST("/assignments/:id/action", handlers.SubmitAction)
		api.POST("/assignments/:id/delegate", handlers.Delegate)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

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
