// Package cache provides the concurrent store of compiled materializers.
//
// Entries are keyed by root type, fetch signature and tracked flag. Lookups
// of built entries are lock-free; the first request for a key builds the
// value exactly once, even when many goroutines race for it, and builds for
// different keys never wait on each other. Entries live as long as the cache:
// fetch shapes are bounded by the application's query surface, so nothing is
// evicted.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Key identifies one compiled materializer.
type Key struct {
	Root      string
	Signature string
	Tracked   bool
}

// String renders the key as "root:signature:tracked".
func (k Key) String() string {
	return k.Root + ":" + k.Signature + ":" + strconv.FormatBool(k.Tracked)
}

// Stats represents cache statistics
type Stats struct {
	Hits        int64
	Misses      int64
	Builds      int64
	BuildErrors int64
	Size        int
	HitRate     float64
}

// Cache maps keys to values built on first use.
type Cache[V any] struct {
	entries sync.Map // Key -> V
	group   singleflight.Group

	size        atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	builds      atomic.Int64
	buildErrors atomic.Int64
}

// New creates an empty cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{}
}

// Get returns the value for key without building it.
func (c *Cache[V]) Get(key Key) (V, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// GetOrBuild returns the value for key, invoking build when it is absent.
//
// Concurrent callers asking for the same absent key share one build call and
// all observe the installed value. A build error is returned to every caller
// waiting on that build and is not cached, so a later call builds again.
func (c *Cache[V]) GetOrBuild(key Key, build func() (V, error)) (V, error) {
	if v, ok := c.entries.Load(key); ok {
		c.hits.Add(1)
		return v.(V), nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		// A build for this key may have completed between Load and Do.
		if v, ok := c.entries.Load(key); ok {
			return v, nil
		}
		c.builds.Add(1)
		built, err := build()
		if err != nil {
			c.buildErrors.Add(1)
			return nil, err
		}
		actual, loaded := c.entries.LoadOrStore(key, built)
		if !loaded {
			c.size.Add(1)
		}
		return actual, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Len returns the number of installed entries.
func (c *Cache[V]) Len() int {
	return int(c.size.Load())
}

// Range calls fn for every entry until fn returns false.
func (c *Cache[V]) Range(fn func(Key, V) bool) {
	c.entries.Range(func(k, v any) bool {
		return fn(k.(Key), v.(V))
	})
}

// GetStats returns cache statistics
func (c *Cache[V]) GetStats() Stats {
	stats := Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Builds:      c.builds.Load(),
		BuildErrors: c.buildErrors.Load(),
		Size:        c.Len(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}
