package statestore

import (
	"context"
	"log/slog"
	"time"

	"dnsflatd/internal/health"
	"dnsflatd/internal/upstream"
)

// Writer periodically snapshots every upstream's health state and metrics
// window into a Store.
type Writer struct {
	store    *Store
	registry *upstream.Registry
	monitor  *health.Monitor
	interval time.Duration
	logger   *slog.Logger
}

// NewWriter builds a Writer. interval <= 0 defaults to one minute.
func NewWriter(store *Store, registry *upstream.Registry, monitor *health.Monitor, interval time.Duration, logger *slog.Logger) *Writer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Writer{store: store, registry: registry, monitor: monitor, interval: interval, logger: logger}
}

// Run blocks, writing a snapshot every interval until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.writeOnce(ctx)
		}
	}
}

func (w *Writer) writeOnce(ctx context.Context) {
	now := time.Now()
	tracked := w.registry.All()
	snaps := make([]Snapshot, 0, len(tracked))
	for _, t := range tracked {
		metrics := t.Metrics.Snapshot()
		snaps = append(snaps, Snapshot{
			CapturedAt:    now,
			UpstreamName:  t.Entry.Name,
			State:         w.monitor.StateOf(t.Entry.Name).String(),
			Samples:       metrics.SampleCount,
			SuccessRate:   metrics.SuccessRate,
			MeanLatencyMs: metrics.MeanLatencyMs,
			InFlight:      t.InFlight(),
		})
	}
	if err := w.store.WriteSnapshots(ctx, snaps); err != nil && w.logger != nil {
		w.logger.WarnContext(ctx, "statestore snapshot write failed", "err", err)
	}
}
