package upstream

import "sync/atomic"

// Tracked pairs an immutable Entry with its mutable rolling metrics and an
// in-flight query counter (used by the least-queries selector strategy).
// Health state is intentionally NOT stored here: spec.md §5 requires health
// state to be mutated by the health monitor only, so it lives in the health
// package's own map keyed by Entry.Name, never reachable from here.
type Tracked struct {
	Entry    Entry
	Metrics  *MetricsWindow
	inFlight atomic.Int64
}

// IncInFlight records the start of an outstanding query to this upstream.
func (t *Tracked) IncInFlight() { t.inFlight.Add(1) }

// DecInFlight records the completion of an outstanding query.
func (t *Tracked) DecInFlight() { t.inFlight.Add(-1) }

// InFlight returns the current number of outstanding queries.
func (t *Tracked) InFlight() int64 { return t.inFlight.Load() }

// Registry is the process-wide, read-only-after-bind set of upstream
// entries (spec.md §3 "Ownership"), in stable configuration order.
type Registry struct {
	entries []*Tracked
	byName  map[string]*Tracked
}

// NewRegistry builds a Registry from an ordered list of entries, each with a
// fresh metrics window of the given sample size.
func NewRegistry(entries []Entry, windowSize int) *Registry {
	r := &Registry{
		entries: make([]*Tracked, 0, len(entries)),
		byName:  make(map[string]*Tracked, len(entries)),
	}
	for _, e := range entries {
		t := &Tracked{Entry: e, Metrics: NewMetricsWindow(windowSize)}
		r.entries = append(r.entries, t)
		r.byName[e.Name] = t
	}
	return r
}

// All returns every tracked upstream in stable configuration order. The
// returned slice must not be mutated by callers.
func (r *Registry) All() []*Tracked { return r.entries }

// Lookup finds a tracked upstream by its configured name.
func (r *Registry) Lookup(name string) (*Tracked, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Len reports the number of configured upstreams.
func (r *Registry) Len() int { return len(r.entries) }
