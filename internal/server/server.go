// Package server exposes the workflow engine over HTTP: a WebSocket
// endpoint executors connect to, plus health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/conductord/internal/logging"
	"github.com/fyrsmithlabs/conductord/internal/workflow"
)

// Runner executes one workflow run against a connected executor. It is
// satisfied by *workflow.Engine.
type Runner interface {
	Execute(ctx context.Context, goal string, ch workflow.ExecutionChannel, sink workflow.Sink) (*workflow.Report, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves executor WebSocket sessions and the operational
// endpoints.
type Server struct {
	echo      *echo.Echo
	runner    Runner
	extraSink workflow.Sink
	upgrader  websocket.Upgrader
	logger    *logging.Logger
	config    *Config
}

// NewServer creates the HTTP server. extraSink is optional and receives
// every lifecycle event in addition to the connected executor.
func NewServer(runner Runner, extraSink workflow.Sink, logger *logging.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8084,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		runner:    runner,
		extraSink: extraSink,
		upgrader: websocket.Upgrader{
			// Executors are headless clients, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/ws", s.handleWS)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleWS upgrades the connection and serves goals sequentially until
// the executor goes away. One connection is one executor: goals queue
// behind each other, never interleave.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn(c.Request().Context(), "websocket upgrade failed", zap.Error(err))
		return err
	}

	ctx := c.Request().Context()
	sess := newSession(conn, s.logger)
	defer sess.close()
	go sess.readPump()

	s.logger.Info(ctx, "executor connected",
		zap.String("remote", conn.RemoteAddr().String()))

	for {
		goal, err := sess.NextGoal(ctx)
		if err != nil {
			s.logger.Info(ctx, "executor disconnected")
			return nil
		}
		if goal == "" {
			continue
		}

		var sink workflow.Sink = sess
		if s.extraSink != nil {
			sink = workflow.MultiSink{sess, s.extraSink}
		}

		if _, err := s.runner.Execute(ctx, goal, sess, sink); err != nil {
			if errors.Is(err, workflow.ErrExecutorDisconnected) {
				s.logger.Info(ctx, "executor disconnected mid-run")
				return nil
			}
			s.logger.Warn(ctx, "run ended with error", zap.Error(err))
		}
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
