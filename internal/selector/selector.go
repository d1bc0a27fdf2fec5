// Package selector implements the upstream selector (C6): a pure function
// from (healthy subset, strategy, mutable selector state) to a chosen
// upstream.
package selector

import (
	"errors"
	"math/rand"
	"sync"

	"dnsflatd/internal/upstream"
)

// Strategy is one of the selection policies from spec.md §4.3.
type Strategy string

const (
	Weighted      Strategy = "weighted"
	LowestLatency Strategy = "lowest-latency"
	Failover      Strategy = "failover"
	RoundRobin    Strategy = "round-robin"
	Random        Strategy = "random"
	LeastQueries  Strategy = "least-queries"
)

// ErrNoUpstreams is returned when the candidate set is empty.
var ErrNoUpstreams = errors.New("selector: no candidate upstreams")

// minLatencySamples is the sample count below which lowest-latency treats
// an upstream's latency as zero, to encourage exploration (spec.md §4.3).
const minLatencySamples = 5

// State holds the small amount of mutable state the selector needs across
// calls (round-robin cursor, weighted rotation accumulator). It is safe for
// concurrent use and must be reused across calls for a given strategy to
// behave as specified.
type State struct {
	mu   sync.Mutex
	rr   int
	wrr  map[string]int // weighted smooth rotation credit, keyed by upstream name
}

// NewState creates fresh selector state.
func NewState() *State {
	return &State{wrr: make(map[string]int)}
}

// Select chooses one upstream from healthy according to strategy.
func Select(healthy []*upstream.Tracked, strategy Strategy, st *State) (*upstream.Tracked, error) {
	if len(healthy) == 0 {
		return nil, ErrNoUpstreams
	}
	switch strategy {
	case Weighted:
		return selectWeighted(healthy, st)
	case LowestLatency:
		return selectLowestLatency(healthy), nil
	case Failover:
		return selectFailover(healthy), nil
	case RoundRobin:
		return selectRoundRobin(healthy, st), nil
	case Random:
		return healthy[rand.Intn(len(healthy))], nil
	case LeastQueries:
		return selectLeastQueries(healthy), nil
	default:
		return selectFailover(healthy), nil
	}
}

// selectWeighted uses smooth weighted round-robin: each call, every
// candidate's credit increases by its weight; the highest-credit candidate
// is chosen and its credit reduced by the sum of all weights. Over many
// calls this converges to the configured weight distribution exactly,
// rather than approximating it with independent random draws.
func selectWeighted(healthy []*upstream.Tracked, st *State) (*upstream.Tracked, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	total := 0
	best := -1
	bestCredit := 0
	for i, t := range healthy {
		w := t.Entry.Weight
		if w <= 0 {
			w = 100
		}
		total += w
		st.wrr[t.Entry.Name] += w
		if best == -1 || st.wrr[t.Entry.Name] > bestCredit {
			best = i
			bestCredit = st.wrr[t.Entry.Name]
		}
	}
	st.wrr[healthy[best].Entry.Name] -= total
	return healthy[best], nil
}

func selectLowestLatency(healthy []*upstream.Tracked) *upstream.Tracked {
	var best *upstream.Tracked
	bestLatency := -1.0
	for _, t := range healthy {
		snap := t.Metrics.Snapshot()
		lat := 0.0
		if snap.SampleCount >= minLatencySamples {
			lat = snap.MeanLatencyMs
		}
		if best == nil || lat < bestLatency {
			best = t
			bestLatency = lat
		}
	}
	return best
}

func selectFailover(healthy []*upstream.Tracked) *upstream.Tracked {
	best := healthy[0]
	for _, t := range healthy[1:] {
		if t.Entry.Priority < best.Entry.Priority {
			best = t
		}
	}
	return best
}

func selectRoundRobin(healthy []*upstream.Tracked, st *State) *upstream.Tracked {
	st.mu.Lock()
	defer st.mu.Unlock()
	idx := st.rr % len(healthy)
	st.rr++
	return healthy[idx]
}

func selectLeastQueries(healthy []*upstream.Tracked) *upstream.Tracked {
	best := healthy[0]
	for _, t := range healthy[1:] {
		if t.InFlight() < best.InFlight() {
			best = t
			continue
		}
		if t.InFlight() == best.InFlight() {
			tw, bw := t.Entry.Weight, best.Entry.Weight
			if tw > bw {
				best = t
			}
		}
	}
	return best
}
