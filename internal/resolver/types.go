// Package resolver implements the flattening resolver (C8): cache lookup,
// in-flight coalescing, upstream selection/retry, CNAME flattening, AAAA
// filtering at emission, and cache population — spec.md §4.5.
package resolver

import (
	"time"

	"dnsflatd/internal/cache"
	"dnsflatd/internal/dnsmsg"
)

// Config parameterizes the resolver per the external interface table in
// spec.md §6.
type Config struct {
	MinTTL             uint32
	MaxTTL             uint32
	DefaultTTL         uint32
	MaxNegativeTTL     uint32
	MaxRecursion       int
	RemoveAAAA         bool
	MaxUpstreamRetries int
	QueryTimeout       time.Duration
}

// Response is the synthesized answer Resolve produces for the front end to
// encode.
type Response struct {
	Answer []dnsmsg.Record
	RCode  dnsmsg.RCode
	Source string // "cache", "upstream", "coalesced", "servfail", ...
}

func keyFor(q dnsmsg.Question) cache.Key {
	return cache.Key{Name: dnsmsg.NormalizeName(q.Name), Type: q.Type, Class: q.Class}
}

func clampTTL(ttl, min, max uint32) uint32 {
	if max > 0 && ttl > max {
		ttl = max
	}
	if ttl < min {
		ttl = min
	}
	return ttl
}

func minUint32(vals ...uint32) uint32 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
