// Package upstream holds the immutable upstream entry (C1), its rolling
// metrics window (C2), and the client used to issue a single query to it
// (C7). Health state (C5) is layered on top in the sibling health package so
// that "health state is mutated by the health monitor only" (spec.md §5)
// stays enforceable by package boundary rather than convention alone.
package upstream

import (
	"net"
	"strconv"
	"time"
)

// Entry describes one upstream resolver. It is immutable after configuration
// bind (spec.md §3): nothing in this package or its callers may mutate an
// Entry's fields once a Tracked wrapping it has been constructed.
type Entry struct {
	Name              string        // stable name used in logs, stats, and config matching
	Addrs             []string      // one or more socket addresses (IPs); first is primary
	Port              int           // UDP/TCP port, same for all Addrs
	Weight            int           // 1..1000, used by the weighted selector strategy
	Priority          int           // 1..10, used by the failover selector strategy
	HealthCheckEnabled bool         // master per-upstream switch for probing
	Timeout           time.Duration // per-query timeout
	Description       string
}

// PrimaryAddr returns the address used for queries: the first configured
// address, paired with Port.
func (e Entry) PrimaryAddr() string {
	if len(e.Addrs) == 0 {
		return ""
	}
	return net.JoinHostPort(e.Addrs[0], strconv.Itoa(e.Port))
}
