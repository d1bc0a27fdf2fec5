// Package health implements the upstream health monitor (C5): a scheduled
// prober that maintains per-upstream health state with hysteresis and
// exposes the healthy subset to the selector.
package health

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"dnsflatd/internal/dnsmsg"
	"dnsflatd/internal/upstream"
)

// State is a health state machine value (spec.md §4.2).
type State int

const (
	Unknown State = iota
	Healthy
	Unhealthy
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Config parameterizes the health monitor, mirroring the external interface
// table in spec.md §6.
type Config struct {
	Enabled           bool
	Interval          time.Duration
	Timeout           time.Duration
	FailureThreshold  int
	RecoveryThreshold int
	StartupGrace      time.Duration
}

type record struct {
	mu            sync.Mutex
	state         State
	lastTransition time.Time
	consecFail    int
	consecSuccess int
}

// Monitor is the process-wide health monitor for one upstream registry.
type Monitor struct {
	registry *upstream.Registry
	client   *upstream.Client
	cfg      Config
	logger   *slog.Logger
	started  time.Time

	mu      sync.Mutex
	records map[string]*record

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor builds a Monitor. All upstreams start Unknown.
func NewMonitor(registry *upstream.Registry, client *upstream.Client, cfg Config, logger *slog.Logger) *Monitor {
	m := &Monitor{
		registry: registry,
		client:   client,
		cfg:      cfg,
		logger:   logger,
		records:  make(map[string]*record, registry.Len()),
		stopCh:   make(chan struct{}),
	}
	for _, t := range registry.All() {
		m.records[t.Entry.Name] = &record{state: Unknown, lastTransition: time.Now()}
	}
	return m
}

func (m *Monitor) recordFor(name string) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[name]
	if !ok {
		r = &record{state: Unknown, lastTransition: time.Now()}
		m.records[name] = r
	}
	return r
}

// Start begins per-upstream probe loops. It is a no-op if health checks are
// disabled in config; probing still runs per-upstream only when that
// upstream's HealthCheckEnabled flag is set.
func (m *Monitor) Start(ctx context.Context) {
	m.started = time.Now()
	if !m.cfg.Enabled {
		return
	}
	for _, t := range m.registry.All() {
		if !t.Entry.HealthCheckEnabled {
			continue
		}
		t := t
		m.wg.Add(1)
		go m.probeLoop(ctx, t)
	}
}

// Stop halts all probe loops and waits for them to exit.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context, t *upstream.Tracked) {
	defer m.wg.Done()
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	// Stagger first probe slightly so many upstreams configured with the
	// same interval don't all probe in lockstep.
	jitter := time.Duration(rand.Int63n(int64(interval) / 4 + 1))
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-timer.C:
			m.probeOnce(ctx, t)
			timer.Reset(interval)
		}
	}
}

// probeOnce issues the root-zone SOA probe query (spec.md §4.2) and feeds
// the result into the hysteresis machine.
func (m *Monitor) probeOnce(ctx context.Context, t *upstream.Tracked) {
	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	reqBytes, id := buildSOAProbe()
	deadline := time.Now().Add(timeout)
	res, err := m.client.Query(ctx, t, reqBytes, deadline)

	success := false
	if err == nil && res.Status == upstream.StatusAnswer && res.Packet.Header.ID == id {
		switch dnsmsg.RCodeFromFlags(res.Packet.Header.Flags) {
		case dnsmsg.RCodeNoError, dnsmsg.RCodeNXDomain:
			success = true
		}
	}
	m.observe(t.Entry.Name, success)
}

// ObserveQueryOutcome feeds a live (non-probe) query outcome into the same
// hysteresis machine, per spec.md §4.2's "Healthy -> Unhealthy" transition
// being driven by "probe or live-query" failures.
func (m *Monitor) ObserveQueryOutcome(name string, outcome upstream.Outcome) {
	m.observe(name, outcome.IsSuccess())
}

func (m *Monitor) observe(name string, success bool) {
	r := m.recordFor(name)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if success {
		r.consecSuccess++
		r.consecFail = 0
	} else {
		r.consecFail++
		r.consecSuccess = 0
	}

	from := r.state
	to := m.nextState(r, success, now)
	if to != from {
		r.state = to
		r.lastTransition = now
		if m.logger != nil {
			m.logger.Info("upstream health transition", "upstream", name, "from", from.String(), "to", to.String())
		}
	}
}

func (m *Monitor) nextState(r *record, success bool, now time.Time) State {
	inGrace := now.Sub(m.started) < m.cfg.StartupGrace

	switch r.state {
	case Unknown:
		if success {
			return Healthy
		}
		if !inGrace && r.consecFail >= failureThreshold(m.cfg) {
			return Unhealthy
		}
		return Unknown
	case Healthy:
		if !success && !inGrace && r.consecFail >= failureThreshold(m.cfg) {
			return Unhealthy
		}
		return Healthy
	case Unhealthy:
		if success && r.consecSuccess >= recoveryThreshold(m.cfg) {
			return Healthy
		}
		return Unhealthy
	default:
		return r.state
	}
}

func failureThreshold(cfg Config) int {
	if cfg.FailureThreshold <= 0 {
		return 3
	}
	return cfg.FailureThreshold
}

func recoveryThreshold(cfg Config) int {
	if cfg.RecoveryThreshold <= 0 {
		return 2
	}
	return cfg.RecoveryThreshold
}

// StateOf returns the current health state of an upstream by name.
func (m *Monitor) StateOf(name string) State {
	r := m.recordFor(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// HealthyFor returns the healthy subset: upstreams in state Healthy, plus
// those still Unknown (warming up). If that set is empty, every configured
// upstream is returned instead (degraded fallback, spec.md §4.2), and the
// caller should treat this as a degraded-mode signal for metrics purposes.
func (m *Monitor) HealthyFor() ([]*upstream.Tracked, bool) {
	all := m.registry.All()
	out := make([]*upstream.Tracked, 0, len(all))
	for _, t := range all {
		switch m.StateOf(t.Entry.Name) {
		case Healthy, Unknown:
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return all, true
	}
	return out, false
}

// buildSOAProbe builds a minimal query for (".", SOA, IN) with a random ID,
// returning the wire bytes and the chosen ID.
func buildSOAProbe() ([]byte, uint16) {
	id := uint16(rand.Intn(1 << 16))
	p := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: id, Flags: dnsmsg.RDFlag},
		Questions: []dnsmsg.Question{{Name: ".", Type: uint16(dnsmsg.TypeSOA), Class: uint16(dnsmsg.ClassIN)}},
	}
	b, err := p.Marshal()
	if err != nil {
		// EncodeName(".") always succeeds; this path is unreachable in practice.
		return nil, id
	}
	return b, id
}
