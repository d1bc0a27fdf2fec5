package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnsflatd/internal/dnsmsg"
)

func TestCacheGetMissThenPutThenHit(t *testing.T) {
	c := New(10, 0, 0)
	now := time.Now()

	key := Key{Name: "example.com", Type: uint16(dnsmsg.TypeA), Class: uint16(dnsmsg.ClassIN)}
	_, ok := c.Get(key, now)
	assert.False(t, ok)

	c.Put(key, Entry{Key: key, ExpiresAt: now.Add(time.Minute)})
	got, ok := c.Get(key, now)
	require.True(t, ok)
	assert.Equal(t, key, got.Key)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCacheExpiredEntryIsAMiss(t *testing.T) {
	c := New(10, 0, 0)
	now := time.Now()
	key := Key{Name: "expired.example.com", Type: uint16(dnsmsg.TypeA)}
	c.Put(key, Entry{Key: key, ExpiresAt: now.Add(-time.Second)})

	_, ok := c.Get(key, now)
	assert.False(t, ok, "entry past ExpiresAt must not be returned")
	assert.Equal(t, 0, c.Stats().Size, "expired entry is evicted lazily on access")
}

func TestCacheEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := New(2, 0, 0)
	now := time.Now()
	k1 := Key{Name: "a.example.com", Type: uint16(dnsmsg.TypeA)}
	k2 := Key{Name: "b.example.com", Type: uint16(dnsmsg.TypeA)}
	k3 := Key{Name: "c.example.com", Type: uint16(dnsmsg.TypeA)}

	c.Put(k1, Entry{Key: k1, ExpiresAt: now.Add(time.Minute)})
	c.Put(k2, Entry{Key: k2, ExpiresAt: now.Add(time.Minute)})
	// touch k1 so k2 becomes the least-recently-used entry
	_, _ = c.Get(k1, now)
	c.Put(k3, Entry{Key: k3, ExpiresAt: now.Add(time.Minute)})

	_, ok := c.Get(k2, now)
	assert.False(t, ok, "k2 should have been evicted as LRU")
	_, ok = c.Get(k1, now)
	assert.True(t, ok)
	_, ok = c.Get(k3, now)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCacheSweepRemovesExpiredEntries(t *testing.T) {
	c := New(10, 0, 0)
	now := time.Now()
	live := Key{Name: "live.example.com", Type: uint16(dnsmsg.TypeA)}
	dead := Key{Name: "dead.example.com", Type: uint16(dnsmsg.TypeA)}

	c.Put(live, Entry{Key: live, ExpiresAt: now.Add(time.Minute)})
	c.Put(dead, Entry{Key: dead, ExpiresAt: now.Add(-time.Minute)})

	removed := c.Sweep(now)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Stats().Size)
}

func TestEntryWithCountdownReflectsRemainingTTL(t *testing.T) {
	now := time.Now()
	e := Entry{
		Answer:    []dnsmsg.Record{{Name: "example.com", Type: uint16(dnsmsg.TypeA), TTL: 999}},
		ExpiresAt: now.Add(30 * time.Second),
	}
	out := e.WithCountdown(now)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(30), out[0].TTL)
}

func TestEntryWithCountdownFloorsAtZero(t *testing.T) {
	now := time.Now()
	e := Entry{
		Answer:    []dnsmsg.Record{{Name: "example.com", Type: uint16(dnsmsg.TypeA), TTL: 999}},
		ExpiresAt: now.Add(-time.Second),
	}
	out := e.WithCountdown(now)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(0), out[0].TTL)
}

func TestCacheInvalidateRemovesEntry(t *testing.T) {
	c := New(10, 0, 0)
	now := time.Now()
	key := Key{Name: "example.com", Type: uint16(dnsmsg.TypeA)}
	c.Put(key, Entry{Key: key, ExpiresAt: now.Add(time.Minute)})

	c.Invalidate(key)
	_, ok := c.Get(key, now)
	assert.False(t, ok)
}
