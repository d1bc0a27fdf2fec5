package resolver

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"dnsflatd/internal/cache"
	"dnsflatd/internal/dnsmsg"
	"dnsflatd/internal/health"
	"dnsflatd/internal/selector"
	"dnsflatd/internal/upstream"
)

type inflightCall struct {
	done   chan struct{}
	result Response
}

// Resolver is the flattening resolver (C8): it owns the cache, the
// in-flight coalescing map, and the upstream selection/retry loop, and
// implements the CNAME-flattening algorithm on top of them.
type Resolver struct {
	registry *upstream.Registry
	monitor  *health.Monitor
	client   *upstream.Client
	cache    *cache.Cache
	strategy selector.Strategy
	selState *selector.State
	cfg      Config
	logger   *slog.Logger

	inflightMu sync.Mutex
	inflight   map[cache.Key]*inflightCall
}

// New builds a Resolver over an already-populated registry and health
// monitor.
func New(registry *upstream.Registry, monitor *health.Monitor, client *upstream.Client, c *cache.Cache, strategy selector.Strategy, cfg Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		monitor:  monitor,
		client:   client,
		cache:    c,
		strategy: strategy,
		selState: selector.NewState(),
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[cache.Key]*inflightCall),
	}
}

// Resolve answers q from cache when possible, otherwise coalesces concurrent
// identical requests onto a single upstream round-trip and populates the
// cache with the result (spec.md §4.5).
func (r *Resolver) Resolve(ctx context.Context, q dnsmsg.Question) Response {
	key := keyFor(q)
	now := time.Now()

	if entry, ok := r.cache.Get(key, now); ok {
		return r.responseFromEntry(entry, now, "cache")
	}

	r.inflightMu.Lock()
	if call, ok := r.inflight[key]; ok {
		r.inflightMu.Unlock()
		<-call.done
		resp := call.result
		resp.Source = "coalesced"
		return resp
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight[key] = call
	r.inflightMu.Unlock()

	resp := r.resolveUncached(ctx, q, key)

	r.inflightMu.Lock()
	delete(r.inflight, key)
	r.inflightMu.Unlock()
	call.result = resp
	close(call.done)

	return resp
}

func (r *Resolver) responseFromEntry(entry cache.Entry, now time.Time, source string) Response {
	if entry.Kind == cache.Negative {
		return Response{RCode: entry.RCode, Source: source}
	}
	emitted := filterAAAA(entry.WithCountdown(now), r.cfg.RemoveAAAA)
	return Response{Answer: emitted, RCode: dnsmsg.RCodeNoError, Source: source}
}

// resolveUncached runs the selection/retry loop against healthy upstreams,
// never repeating an upstream within one query, up to MaxUpstreamRetries
// additional attempts beyond the first.
func (r *Resolver) resolveUncached(ctx context.Context, q dnsmsg.Question, key cache.Key) Response {
	healthy, _ := r.monitor.HealthyFor()
	tried := make(map[string]bool, len(healthy))

	maxAttempts := r.cfg.MaxUpstreamRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidates := excludeTried(healthy, tried)
		if len(candidates) == 0 {
			break
		}
		t, err := selector.Select(candidates, r.strategy, r.selState)
		if err != nil {
			break
		}
		tried[t.Entry.Name] = true

		reqBytes, id := buildQuery(q)
		timeout := t.Entry.Timeout
		if timeout <= 0 {
			timeout = r.cfg.QueryTimeout
		}
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		deadline := time.Now().Add(timeout)

		res, err := r.client.Query(ctx, t, reqBytes, deadline)
		r.monitor.ObserveQueryOutcome(t.Entry.Name, outcomeFor(res, err))

		if err != nil || res.Status != upstream.StatusAnswer || res.Packet.Header.ID != id {
			if r.logger != nil {
				r.logger.Debug("upstream attempt failed", "upstream", t.Entry.Name, "query", q.Name, "err", err)
			}
			continue
		}

		rcode := dnsmsg.RCodeFromFlags(res.Packet.Header.Flags)
		if rcode == dnsmsg.RCodeNoError || rcode == dnsmsg.RCodeNXDomain {
			return r.handleAnswer(ctx, q, key, res.Packet, rcode)
		}
		// Any other RCODE (SERVFAIL, REFUSED, ...) counts as a failed
		// attempt; retry against a different upstream.
	}

	if r.logger != nil {
		r.logger.Warn("all upstream attempts exhausted", "query", q.Name, "type", q.Type)
	}
	return Response{RCode: dnsmsg.RCodeServFail, Source: "servfail"}
}

func (r *Resolver) handleAnswer(ctx context.Context, q dnsmsg.Question, key cache.Key, packet dnsmsg.Packet, rcode dnsmsg.RCode) Response {
	now := time.Now()

	if rcode == dnsmsg.RCodeNXDomain || len(packet.Answers) == 0 {
		ttl := negativeTTL(packet.Authorities, r.cfg.MaxNegativeTTL)
		r.cache.Put(key, cache.Entry{
			Key:            key,
			Kind:           cache.Negative,
			RCode:          rcode,
			InsertedAt:     now,
			ExpiresAt:      now.Add(time.Duration(ttl) * time.Second),
			OriginalMinTTL: ttl,
		})
		return Response{RCode: rcode, Source: "upstream"}
	}

	var finalAnswer []dnsmsg.Record
	complete := true
	if dnsmsg.RecordType(q.Type).IsAddressType() {
		fr := r.flatten(ctx, q, packet.Answers)
		finalAnswer, complete = fr.records, fr.complete
	} else {
		// Non-address query types are carried through opaquely; no
		// flattening is attempted for them (spec.md §3).
		finalAnswer = packet.Answers
	}

	if !complete || len(finalAnswer) == 0 {
		if r.logger != nil {
			r.logger.Warn("cname flattening did not complete", "query", q.Name, "complete", complete, "records", len(finalAnswer))
		}
		return Response{RCode: dnsmsg.RCodeServFail, Source: "servfail"}
	}

	ttl := clampTTL(minTTLOf(finalAnswer), r.cfg.MinTTL, r.cfg.MaxTTL)
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}

	r.cache.Put(key, cache.Entry{
		Key:            key,
		Answer:         finalAnswer,
		Kind:           cache.Positive,
		InsertedAt:     now,
		ExpiresAt:      now.Add(time.Duration(ttl) * time.Second),
		OriginalMinTTL: ttl,
	})

	emitted := filterAAAA(finalAnswer, r.cfg.RemoveAAAA)
	return Response{Answer: emitted, RCode: dnsmsg.RCodeNoError, Source: "upstream"}
}

func excludeTried(healthy []*upstream.Tracked, tried map[string]bool) []*upstream.Tracked {
	out := make([]*upstream.Tracked, 0, len(healthy))
	for _, t := range healthy {
		if !tried[t.Entry.Name] {
			out = append(out, t)
		}
	}
	return out
}

func outcomeFor(res upstream.Result, err error) upstream.Outcome {
	switch {
	case err != nil || res.Status == upstream.StatusTimeout:
		return upstream.OutcomeTimeout
	case res.Status == upstream.StatusNetworkError, res.Status == upstream.StatusMalformed:
		return upstream.OutcomeError
	case res.Status == upstream.StatusAnswer:
		switch dnsmsg.RCodeFromFlags(res.Packet.Header.Flags) {
		case dnsmsg.RCodeServFail:
			return upstream.OutcomeServFail
		case dnsmsg.RCodeRefused:
			return upstream.OutcomeRefused
		default:
			return upstream.OutcomeSuccess
		}
	default:
		return upstream.OutcomeError
	}
}

func buildQuery(q dnsmsg.Question) ([]byte, uint16) {
	id := uint16(rand.Intn(1 << 16))
	p := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: id, Flags: dnsmsg.RDFlag, QDCount: 1},
		Questions: []dnsmsg.Question{{Name: q.Name, Type: q.Type, Class: q.Class}},
	}
	b, err := p.Marshal()
	if err != nil {
		return nil, id
	}
	return b, id
}

func minTTLOf(recs []dnsmsg.Record) uint32 {
	if len(recs) == 0 {
		return 0
	}
	ttls := make([]uint32, len(recs))
	for i, rr := range recs {
		ttls[i] = rr.TTL
	}
	return minUint32(ttls...)
}
