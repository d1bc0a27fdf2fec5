package frontend

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"dnsflatd/internal/adminapi"
	"dnsflatd/internal/cache"
	"dnsflatd/internal/config"
	"dnsflatd/internal/health"
	"dnsflatd/internal/resolver"
	"dnsflatd/internal/selector"
	"dnsflatd/internal/statestore"
	"dnsflatd/internal/upstream"
)

// Runner orchestrates process startup, wiring, and graceful shutdown: config
// -> registry -> client -> health monitor -> cache -> resolver -> UDP/TCP
// servers. Mirrors the teacher's server.Runner lifecycle.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run blocks until a shutdown signal (SIGINT/SIGTERM) arrives or a server
// fails to start, then gracefully stops everything.
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := r.buildRegistry(cfg)
	client := upstream.NewClientWithLimit(cfg.Flattener.MaxInFlightPerUpstream)
	monitor := health.NewMonitor(registry, client, healthConfigFrom(cfg.Health), r.logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	c := cache.New(cfg.Cache.MaxSize, cfg.Cache.CleanupInterval, cfg.Cache.SweepProbability)

	strategy := selector.Strategy(cfg.Selector.Strategy)
	res := resolver.New(registry, monitor, client, c, strategy, resolverConfigFrom(cfg.Flattener), r.logger)

	handler := &QueryHandler{Logger: r.logger, Resolver: res, Timeout: cfg.Flattener.QueryTimeout}
	limiter := NewRateLimiter(RateLimiterConfig{
		QPS:             cfg.RateLimit.IPQPS,
		Burst:           cfg.RateLimit.IPBurst,
		MaxEntries:      cfg.RateLimit.MaxIPEntries,
		CleanupInterval: time.Duration(cfg.RateLimit.CleanupSeconds * float64(time.Second)),
	})

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	maxConcurrent := maxConcurrentQueries(cfg)

	udp := &UDPServer{Logger: r.logger, Handler: handler, Limiter: limiter, MaxConcurrentQueries: maxConcurrent}
	var tcp *TCPServer
	if cfg.Server.EnableTCP {
		tcp = &TCPServer{Logger: r.logger, Handler: handler, IdleTimeout: cfg.Server.TCPIdleTimeout, MaxConcurrentQueries: maxConcurrent}
	}

	var store *statestore.Store
	var writer *statestore.Writer
	if cfg.StateStore.Enabled {
		var err error
		store, err = statestore.Open(cfg.StateStore.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		writer = statestore.NewWriter(store, registry, monitor, cfg.StateStore.SnapshotInterval, r.logger)
		go writer.Run(ctx)
	}

	var admin *adminapi.Server
	if cfg.Admin.Enabled {
		admin = adminapi.New(cfg.Admin, registry, monitor, c, store, r.logger)
	}

	if r.logger != nil {
		r.logger.Info("dns proxy listening",
			"addr", addr, "tcp", cfg.Server.EnableTCP,
			"upstreams", registry.Len(), "strategy", string(strategy))
		if admin != nil {
			r.logger.Info("admin api listening", "addr", admin.Addr())
		}
	}

	errCh := make(chan error, 3)
	go func() { errCh <- udp.Run(ctx, addr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, addr) }()
	}
	if admin != nil {
		go func() {
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}
	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), stopTimeout)
		_ = admin.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	return nil
}

func (r *Runner) buildRegistry(cfg *config.Config) *upstream.Registry {
	entries := make([]upstream.Entry, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		entries = append(entries, upstream.Entry{
			Name:               u.Name,
			Addrs:              u.Addrs,
			Port:               u.Port,
			Weight:             u.Weight,
			Priority:           u.Priority,
			HealthCheckEnabled: u.HealthCheckEnabled,
			Timeout:            u.Timeout,
			Description:        u.Description,
		})
	}
	const metricsWindowSize = 128
	return upstream.NewRegistry(entries, metricsWindowSize)
}

func healthConfigFrom(c config.HealthConfig) health.Config {
	return health.Config{
		Enabled:           c.Enabled,
		Interval:          c.Interval,
		Timeout:           c.Timeout,
		FailureThreshold:  c.FailureThreshold,
		RecoveryThreshold: c.RecoveryThreshold,
		StartupGrace:      c.StartupGrace,
	}
}

func resolverConfigFrom(c config.FlattenerConfig) resolver.Config {
	return resolver.Config{
		MinTTL:             c.MinTTL,
		MaxTTL:             c.MaxTTL,
		DefaultTTL:         c.DefaultTTL,
		MaxNegativeTTL:     c.MaxNegativeTTL,
		MaxRecursion:       c.MaxRecursion,
		RemoveAAAA:         c.RemoveAAAA,
		MaxUpstreamRetries: c.MaxUpstreamRetries,
		QueryTimeout:       c.QueryTimeout,
	}
}

// maxConcurrentQueries derives the frontend's global admission ceiling from
// the server's worker setting: "workers" historically sized a fixed
// long-lived goroutine pool per socket, but now bounds the total number of
// short-lived query tasks the UDP and TCP dispatchers will admit at once.
func maxConcurrentQueries(cfg *config.Config) int {
	if cfg.Server.Workers.Mode == config.WorkersFixed && cfg.Server.Workers.Value > 0 {
		return cfg.Server.Workers.Value
	}
	return DefaultMaxConcurrentQueries
}
