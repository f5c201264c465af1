// nullcache.go: degenerate never-stores cache
//
// A CacheBuilder configured with MaximumSize(0), ExpireAfterWrite(0) or
// ExpireAfterAccess(0) describes a cache that, by construction, never
// retains an entry. Rather than spin up a full table of segments whose
// every Put immediately evicts what it just inserted, Build returns
// this lightweight variant directly.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import "context"

// nullCache reports every discarded write with a single RemovalCause,
// decided at Build time: a zero max size takes precedence over a zero
// TTL when both apply, the same SIZE-trumps-EXPIRED tie-break the
// segment's eviction engine uses.
type nullCache[K comparable, V any] struct {
	cause     RemovalCause
	onRemoval RemovalListener[K, V]
	logger    Logger
	stats     *cacheStats
	cfg       CacheConfig
}

func newNullCache[K comparable, V any](cause RemovalCause, onRemoval RemovalListener[K, V], logger Logger, cfg CacheConfig) *nullCache[K, V] {
	return &nullCache[K, V]{cause: cause, onRemoval: onRemoval, logger: logger, stats: newCacheStats(), cfg: cfg}
}

// Config returns the knobs this degenerate cache was built with,
// satisfying Configured the same as the segmented variant.
func (n *nullCache[K, V]) Config() CacheConfig {
	return n.cfg
}

func (n *nullCache[K, V]) Get(key K) (V, bool) {
	rejectNilKey(key, "Get")
	n.stats.recordMiss()
	var zero V
	return zero, false
}

func (n *nullCache[K, V]) GetOrCompute(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error) {
	if isNilGeneric(key) {
		var zero V
		return zero, NewErrNilKey("GetOrCompute")
	}
	n.stats.recordMiss()
	start := defaultTicker{}.NowNanos()
	result, err := runCompute(ctx, compute)
	elapsed := defaultTicker{}.NowNanos() - start
	if err != nil {
		n.stats.recordLoadFailure(elapsed)
		var zero V
		return zero, NewErrComputeFailed(key, err)
	}
	if isNilGeneric(result) {
		n.stats.recordLoadFailure(elapsed)
		var zero V
		return zero, NewErrComputeNilValue(key)
	}
	n.stats.recordLoadSuccess(elapsed)
	dispatchRemoval(n.onRemoval, n.logger, RemovalNotification[K, V]{Key: key, Value: result, HasKey: true, HasValue: true, Cause: n.cause})
	n.stats.evictions.Add(1)
	return result, nil
}

func (n *nullCache[K, V]) Put(key K, value V) (V, bool) {
	rejectNilKey(key, "Put")
	rejectNilValue(value, "Put")
	dispatchRemoval(n.onRemoval, n.logger, RemovalNotification[K, V]{Key: key, Value: value, HasKey: true, HasValue: true, Cause: n.cause})
	n.stats.evictions.Add(1)
	var zero V
	return zero, false
}

func (n *nullCache[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	n.Put(key, value)
	var zero V
	return zero, false
}

func (n *nullCache[K, V]) Remove(key K) (V, bool) {
	rejectNilKey(key, "Remove")
	var zero V
	return zero, false
}

func (n *nullCache[K, V]) RemoveIfMatch(key K, expected V) bool {
	rejectNilKey(key, "RemoveIfMatch")
	return false
}

func (n *nullCache[K, V]) Replace(key K, newValue V) (V, bool) {
	rejectNilKey(key, "Replace")
	rejectNilValue(newValue, "Replace")
	var zero V
	return zero, false
}

func (n *nullCache[K, V]) ReplaceIfMatch(key K, oldValue, newValue V) bool {
	rejectNilKey(key, "ReplaceIfMatch")
	rejectNilValue(newValue, "ReplaceIfMatch")
	return false
}

func (n *nullCache[K, V]) ContainsKey(key K) bool {
	rejectNilKey(key, "ContainsKey")
	return false
}

func (n *nullCache[K, V]) ContainsValue(v V) bool { return false }

func (n *nullCache[K, V]) Size() int { return 0 }

func (n *nullCache[K, V]) Clear() {}

func (n *nullCache[K, V]) ForEach(fn func(K, V) bool) {}

func (n *nullCache[K, V]) Stats() CacheStats { return n.stats.snapshot() }

func (n *nullCache[K, V]) Close() error { return nil }
