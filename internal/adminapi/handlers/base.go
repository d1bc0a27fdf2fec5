// Package handlers implements the admin API's endpoint handlers.
//
// @title dnsflatd admin API
// @version 1.0
// @description Read-only observability surface for the CNAME-flattening DNS proxy: liveness, live upstream stats, and durable stats history.
//
// @license.name MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"time"

	"dnsflatd/internal/cache"
	"dnsflatd/internal/health"
	"dnsflatd/internal/statestore"
	"dnsflatd/internal/upstream"
)

// Handler contains dependencies for admin API handlers. Every dependency is
// read-only from this package's point of view (spec.md §5's ownership
// rule: health state mutated only by the health monitor, cache mutated
// only by the resolver).
type Handler struct {
	logger    *slog.Logger
	startTime time.Time

	registry *upstream.Registry
	monitor  *health.Monitor
	cache    *cache.Cache
	store    *statestore.Store
}

// New creates a Handler. store may be nil when the state store is disabled,
// in which case History reports an empty result.
func New(registry *upstream.Registry, monitor *health.Monitor, c *cache.Cache, store *statestore.Store, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		startTime: time.Now(),
		registry:  registry,
		monitor:   monitor,
		cache:     c,
		store:     store,
	}
}
