// Package frontend implements the protocol front end (C9): UDP and TCP DNS
// servers with SO_REUSEPORT multi-core scaling, per-IP rate limiting, and
// EDNS-aware truncation, built on top of the resolver package.
package frontend

import (
	"math"
	"net/netip"
	"sync"
	"time"
)

// RateLimiterConfig configures the per-IP token bucket (spec.md §5/§6).
type RateLimiterConfig struct {
	QPS             float64
	Burst           int
	MaxEntries      int
	CleanupInterval time.Duration
}

// RateLimiter is a per-source-IP token bucket admission filter, applied by
// the UDP server before a request is even parsed. The TCP server does not
// consult it.
type RateLimiter struct {
	rate            float64
	burst           float64
	cleanupInterval time.Duration
	maxEntries      int

	mu          sync.Mutex
	lastCleanup time.Time
	lastUpdate  map[string]time.Time
	tokens      map[string]float64
}

// NewRateLimiter builds a RateLimiter. A non-positive QPS or Burst disables
// rate limiting entirely (Allow always returns true).
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 65536
	}
	ci := cfg.CleanupInterval
	if ci <= 0 {
		ci = 60 * time.Second
	}
	return &RateLimiter{
		rate:            cfg.QPS,
		burst:           float64(cfg.Burst),
		cleanupInterval: ci,
		maxEntries:      maxEntries,
		lastCleanup:     time.Now(),
		lastUpdate:      map[string]time.Time{},
		tokens:          map[string]float64{},
	}
}

// AllowAddr admits or rejects one query from ip.
func (l *RateLimiter) AllowAddr(ip netip.Addr) bool {
	return l.Allow(ip.String())
}

// Allow admits or rejects one query from the given key (typically a source
// IP string).
func (l *RateLimiter) Allow(key string) bool {
	if l == nil || l.rate <= 0.0 || l.burst <= 0.0 {
		return true
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanupLocked(now)
	}

	last, exists := l.lastUpdate[key]
	if !exists {
		if len(l.lastUpdate) >= l.maxEntries {
			l.cleanupLocked(now)
			if len(l.lastUpdate) >= l.maxEntries {
				return false
			}
		}
		l.lastUpdate[key] = now
		l.tokens[key] = l.burst - 1.0
		return true
	}

	elapsed := now.Sub(last).Seconds()
	l.lastUpdate[key] = now

	tokens := l.tokens[key]
	if elapsed > 0 {
		tokens = math.Min(l.burst, tokens+(elapsed*l.rate))
	}
	if tokens >= 1.0 {
		l.tokens[key] = tokens - 1.0
		return true
	}
	l.tokens[key] = tokens
	return false
}

func (l *RateLimiter) cleanupLocked(now time.Time) {
	staleBefore := now.Add(-l.cleanupInterval)
	for k, last := range l.lastUpdate {
		if !last.After(staleBefore) {
			delete(l.lastUpdate, k)
			delete(l.tokens, k)
		}
	}
	l.lastCleanup = now
}
