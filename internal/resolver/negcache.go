package resolver

import "dnsflatd/internal/dnsmsg"

// soaMinimum extracts the MINIMUM field from an SOA record found in an
// authority section, used as the negative-caching TTL per RFC 2308 and
// spec.md §4.5. It returns ok=false when no SOA is present.
func soaMinimum(authority []dnsmsg.Record) (uint32, bool) {
	for _, rr := range authority {
		if dnsmsg.RecordType(rr.Type) != dnsmsg.TypeSOA {
			continue
		}
		soa, ok := rr.Data.(dnsmsg.SOAData)
		if !ok {
			continue
		}
		return soa.Minimum, true
	}
	return 0, false
}

// negativeTTL computes the TTL to use for a cached negative entry: the
// authority section's SOA MINIMUM when present, clamped to maxNegativeTTL;
// otherwise maxNegativeTTL itself.
func negativeTTL(authority []dnsmsg.Record, maxNegativeTTL uint32) uint32 {
	ttl, ok := soaMinimum(authority)
	if !ok || ttl > maxNegativeTTL {
		ttl = maxNegativeTTL
	}
	return ttl
}
