// Package http provides the HTTP API for shopd.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/shopd/internal/agent"
	"github.com/fyrsmithlabs/shopd/internal/logging"
)

// Runner handles one conversational turn or one approval decision.
type Runner interface {
	HandleTurn(ctx context.Context, req agent.TurnRequest) agent.TurnResult
	HandleApproval(ctx context.Context, req agent.ApprovalRequest) agent.TurnResult
}

// Server provides HTTP endpoints for shopd.
type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *zap.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", requestID),
			)

			return err
		}
	})

	metrics := NewMetrics(logger)
	e.Use(metrics.Middleware())

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	api.POST("/chat", s.handleChat)
	api.POST("/approve", s.handleApprove)
}

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	Message  string `json:"message"`
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
}

// ChatResponse is the response body for POST /api/chat.
type ChatResponse struct {
	Response         string         `json:"response"`
	ThreadID         string         `json:"thread_id"`
	RequiresApproval bool           `json:"requires_approval"`
	ApprovalRequest  map[string]any `json:"approval_request,omitempty"`
	Task             string         `json:"task,omitempty"`
}

// ApproveRequest is the request body for POST /api/approve.
type ApproveRequest struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	Approved bool   `json:"approved"`
	OrderID  string `json:"order_id"`
}

// ApproveResponse is the response body for POST /api/approve.
type ApproveResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleChat processes one user message. A missing thread_id starts a new
// conversation thread.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}

	result := s.runner.HandleTurn(c.Request().Context(), agent.TurnRequest{
		Message:  req.Message,
		UserID:   req.UserID,
		ThreadID: req.ThreadID,
	})

	return c.JSON(http.StatusOK, ChatResponse{
		Response:         result.Response,
		ThreadID:         result.ThreadID,
		RequiresApproval: result.RequiresApproval,
		ApprovalRequest:  result.ApprovalPayload,
		Task:             string(result.ActiveTask),
	})
}

// handleApprove applies an explicit purchase decision for a pending approval.
func (s *Server) handleApprove(c echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid approve request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.ThreadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id field is required")
	}

	result := s.runner.HandleApproval(c.Request().Context(), agent.ApprovalRequest{
		ThreadID: req.ThreadID,
		UserID:   req.UserID,
		Approved: req.Approved,
		OrderID:  req.OrderID,
	})

	return c.JSON(http.StatusOK, ApproveResponse{
		Response: result.Response,
		ThreadID: result.ThreadID,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
