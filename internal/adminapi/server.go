// Package adminapi provides the read-only admin/observability REST API for
// dnsflatd: liveness, live per-upstream health and metrics, and durable
// stats history, via a Gin-based HTTP server with swagger docs.
//
// Security note: do not expose this API to untrusted networks without
// setting admin.api_key.
package adminapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dnsflatd/internal/adminapi/handlers"
	"dnsflatd/internal/adminapi/middleware"
	"dnsflatd/internal/cache"
	"dnsflatd/internal/config"
	"dnsflatd/internal/health"
	"dnsflatd/internal/statestore"
	"dnsflatd/internal/upstream"
)

// Server is the admin REST API server.
type Server struct {
	cfg        config.AdminConfig
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a Server. store may be nil when the state store is disabled.
func New(cfg config.AdminConfig, registry *upstream.Registry, monitor *health.Monitor, c *cache.Cache, store *statestore.Store, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(registry, monitor, c, store, logger)
	RegisterRoutes(engine, h, &cfg)
	mountDashboard(engine, logger)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

// Addr returns the server's bind address.
func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
