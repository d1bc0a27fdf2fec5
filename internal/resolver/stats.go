package resolver

import (
	"fmt"

	"dnsflatd/internal/dnsmsg"
)

// ReservedStatsName is the special query name that triggers the observational
// stats endpoint (C10) instead of ordinary resolution (spec.md §6).
const ReservedStatsName = "_dns-proxy-stats.local"

// IsStatsQuery reports whether q should be answered by StatsAnswer instead
// of Resolve.
func IsStatsQuery(q dnsmsg.Question) bool {
	return dnsmsg.NormalizeName(q.Name) == ReservedStatsName && dnsmsg.RecordType(q.Type) == dnsmsg.TypeTXT
}

// StatsAnswer synthesizes one TXT record per configured upstream describing
// its current health state and rolling metrics. It never touches the cache,
// the in-flight map, or the health monitor's state — purely observational,
// per spec.md §4.6.
func (r *Resolver) StatsAnswer(q dnsmsg.Question) Response {
	owner := dnsmsg.NormalizeName(q.Name)
	var answer []dnsmsg.Record
	for _, t := range r.registry.All() {
		snap := t.Metrics.Snapshot()
		state := r.monitor.StateOf(t.Entry.Name)
		text := fmt.Sprintf(
			"upstream=%s state=%s samples=%d success_rate=%.3f mean_latency_ms=%.2f in_flight=%d",
			t.Entry.Name, state.String(), snap.SampleCount, snap.SuccessRate, snap.MeanLatencyMs, t.InFlight(),
		)
		answer = append(answer, dnsmsg.Record{
			Name:  owner,
			Type:  uint16(dnsmsg.TypeTXT),
			Class: uint16(dnsmsg.ClassIN),
			TTL:   0,
			Data:  []string{text},
		})
	}
	return Response{Answer: answer, RCode: dnsmsg.RCodeNoError, Source: "stats"}
}
