package resolver

import (
	"context"

	"dnsflatd/internal/dnsmsg"
)

// flattenResult is the outcome of walking a CNAME chain down to its
// terminal address records.
type flattenResult struct {
	records  []dnsmsg.Record
	complete bool // false if recursion was cut short by a loop or the depth limit
}

type pendingName struct {
	name      string
	chainTTLs []uint32
}

// flatten walks the CNAME chain for q0 starting from the records already
// present in an upstream answer section (byName), recursively resolving any
// target not found there, per spec.md §4.5:
//
//  1. If the current name has a record of the queried type, take it.
//  2. Else if it has a CNAME, follow it, carrying the CNAME's own TTL along
//     for the final minimum-TTL computation.
//  3. Else issue a fresh Resolve for (queried type, current name) and splice
//     its answer in, rewritten under q0's owner name.
//
// A name visited twice aborts that branch (loop, spec.md §8 invariant about
// non-termination); more than cfg.MaxRecursion distinct names visited aborts
// the whole walk. Both cases mark the result incomplete, which the caller
// turns into SERVFAIL.
func (r *Resolver) flatten(ctx context.Context, q0 dnsmsg.Question, answer []dnsmsg.Record) flattenResult {
	byName := indexByName(answer)
	visited := make(map[string]bool)
	queue := []pendingName{{name: dnsmsg.NormalizeName(q0.Name)}}

	var out flattenResult
	out.complete = true

	for len(queue) > 0 {
		if len(visited) >= r.cfg.MaxRecursion {
			out.complete = false
			break
		}
		item := queue[0]
		queue = queue[1:]

		if visited[item.name] {
			out.complete = false
			continue
		}
		visited[item.name] = true

		recs := byName[item.name]
		var terminals []dnsmsg.Record
		var cnameTargets []pendingName
		for _, rr := range recs {
			if dnsmsg.RecordType(rr.Type) == dnsmsg.RecordType(q0.Type) {
				terminals = append(terminals, rr)
			}
			if target, ok := rr.CNAMETarget(); ok {
				cnameTargets = append(cnameTargets, pendingName{
					name:      dnsmsg.NormalizeName(target),
					chainTTLs: append(append([]uint32{}, item.chainTTLs...), rr.TTL),
				})
			}
		}

		if len(terminals) > 0 {
			for _, rr := range terminals {
				ttl := minUint32(append(append([]uint32{}, item.chainTTLs...), rr.TTL)...)
				out.records = append(out.records, retag(rr, q0.Name, ttl))
			}
			continue
		}

		if len(cnameTargets) > 0 {
			queue = append(queue, cnameTargets...)
			continue
		}

		sub := r.Resolve(ctx, dnsmsg.Question{Name: item.name, Type: q0.Type, Class: q0.Class})
		if sub.RCode != dnsmsg.RCodeNoError || len(sub.Answer) == 0 {
			out.complete = false
			continue
		}
		for _, rr := range sub.Answer {
			ttl := minUint32(append(append([]uint32{}, item.chainTTLs...), rr.TTL)...)
			out.records = append(out.records, retag(rr, q0.Name, ttl))
		}
	}

	return out
}

func indexByName(recs []dnsmsg.Record) map[string][]dnsmsg.Record {
	m := make(map[string][]dnsmsg.Record, len(recs))
	for _, rr := range recs {
		n := dnsmsg.NormalizeName(rr.Name)
		m[n] = append(m[n], rr)
	}
	return m
}

func retag(rr dnsmsg.Record, owner string, ttl uint32) dnsmsg.Record {
	rr.Name = owner
	rr.TTL = ttl
	return rr
}

// filterAAAA strips AAAA records from an answer set at emission time only;
// the cache always retains the unfiltered flattened set (spec.md §4.5).
func filterAAAA(recs []dnsmsg.Record, remove bool) []dnsmsg.Record {
	if !remove {
		return recs
	}
	out := make([]dnsmsg.Record, 0, len(recs))
	for _, rr := range recs {
		if dnsmsg.RecordType(rr.Type) == dnsmsg.TypeAAAA {
			continue
		}
		out = append(out, rr)
	}
	return out
}
