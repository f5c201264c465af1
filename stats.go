// stats.go: atomic hit/miss/load/eviction counters backing CacheStats
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import "sync/atomic"

// cacheStats is shared by every segment of a table so that Stats()
// reports table-wide totals without a lock or a per-segment fan-out
// read.
type cacheStats struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	loadSuccess    atomic.Uint64
	loadFailure    atomic.Uint64
	evictions      atomic.Uint64
	totalLoadNanos atomic.Int64
}

func newCacheStats() *cacheStats { return &cacheStats{} }

func (c *cacheStats) recordHit()  { c.hits.Add(1) }
func (c *cacheStats) recordMiss() { c.misses.Add(1) }

func (c *cacheStats) recordLoadSuccess(durationNanos int64) {
	c.loadSuccess.Add(1)
	c.totalLoadNanos.Add(durationNanos)
}

func (c *cacheStats) recordLoadFailure(durationNanos int64) {
	c.loadFailure.Add(1)
	c.totalLoadNanos.Add(durationNanos)
}

func (c *cacheStats) snapshot() CacheStats {
	return CacheStats{
		HitCount:         c.hits.Load(),
		MissCount:        c.misses.Load(),
		LoadSuccessCount: c.loadSuccess.Load(),
		LoadFailureCount: c.loadFailure.Load(),
		EvictionCount:    c.evictions.Load(),
		TotalLoadNanos:   c.totalLoadNanos.Load(),
	}
}
