// Package api provides the localhost HTTP surface of the daemon:
// health and status for operators and the installer's check step. The
// question pipeline itself is served over the unix socket, not here.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/jjgarcianorway/anna/pkg/queue"
	"github.com/jjgarcianorway/anna/pkg/version"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// Server is the HTTP status server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	pool       *queue.WorkerPool
	started    time.Time
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	UptimeS int64        `json:"uptime_s"`
	Pool    queue.Health `json:"pool"`
}

// NewServer creates the HTTP server bound to addr.
func NewServer(addr string, pool *queue.WorkerPool) *Server {
	e := echo.New()
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		pool:    pool,
		started: time.Now(),
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           e,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	e.GET("/health", s.healthHandler)
	e.GET("/status", s.healthHandler)
	return s
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	slog.Info("HTTP status server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns a minimal, safe payload suitable for
// unauthenticated localhost access. The LLM endpoint is deliberately
// not probed here: an unreachable model must not make the daemon look
// dead, the pipeline degrades to deterministic fallbacks instead.
func (s *Server) healthHandler(c *echo.Context) error {
	pool := s.pool.Snapshot()
	status := healthStatusHealthy
	httpStatus := http.StatusOK
	if pool.Workers == 0 {
		status = healthStatusDegraded
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.Full(),
		UptimeS: int64(time.Since(s.started).Seconds()),
		Pool:    pool,
	})
}
