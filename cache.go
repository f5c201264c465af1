// cache.go: concrete segmented Cache[K,V]
//
// Wires table (the segmented hash engine), a background cleanup
// executor, and the stats/logging/removal-listener knobs a CacheBuilder
// resolves, into the public Cache interface. Maintenance is amortized:
// segments sweep opportunistically on writes, and a periodic goroutine
// sweeps every segment so expiration is observed even on idle caches.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// defaultCleanupInterval is how often the background goroutine sweeps
// every segment for expired/reclaimed/oversized entries, independent of
// traffic. Segments also clean up opportunistically on every write.
const defaultCleanupInterval = 1 * time.Second

type cache[K comparable, V any] struct {
	name   string
	table  *table[K, V]
	stats  *cacheStats
	ticker Ticker
	logger Logger
	cfg    CacheConfig

	cleanupInterval time.Duration
	closeOnce       sync.Once
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

func newCache[K comparable, V any](name string, t *table[K, V], stats *cacheStats, ticker Ticker, logger Logger, cleanupInterval time.Duration, cfg CacheConfig) *cache[K, V] {
	c := &cache[K, V]{
		name:            name,
		table:           t,
		stats:           stats,
		ticker:          ticker,
		logger:          logger,
		cfg:             cfg,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Config returns the knobs this cache was built with, satisfying
// Configured for callers such as persist.Save that need to recover the
// original configuration rather than the per-segment divided form.
func (c *cache[K, V]) Config() CacheConfig {
	return c.cfg
}

func (c *cache[K, V]) cleanupLoop() {
	defer close(c.cleanupDone)
	if c.cleanupInterval <= 0 {
		return
	}
	t := time.NewTicker(c.cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.table.runCleanupAll()
			c.logger.Debug("segcache: background cleanup swept all segments", "name", c.name)
		case <-c.stopCleanup:
			c.logger.Debug("segcache: cleanup loop stopped", "name", c.name)
			return
		}
	}
}

func (c *cache[K, V]) Get(key K) (V, bool) {
	rejectNilKey(key, "Get")
	v, ok := c.table.get(key)
	if ok {
		c.stats.recordHit()
	} else {
		c.stats.recordMiss()
	}
	return v, ok
}

func (c *cache[K, V]) GetOrCompute(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error) {
	if isNilGeneric(key) {
		var zero V
		return zero, NewErrNilKey("GetOrCompute")
	}
	return c.table.getOrCompute(ctx, key, c.stats, compute)
}

func (c *cache[K, V]) Put(key K, value V) (V, bool) {
	rejectNilKey(key, "Put")
	rejectNilValue(value, "Put")
	return c.table.put(key, value)
}

func (c *cache[K, V]) PutIfAbsent(key K, value V) (V, bool) {
	rejectNilKey(key, "PutIfAbsent")
	rejectNilValue(value, "PutIfAbsent")
	return c.table.putIfAbsent(key, value)
}

func (c *cache[K, V]) Remove(key K) (V, bool) {
	rejectNilKey(key, "Remove")
	return c.table.remove(key)
}

func (c *cache[K, V]) RemoveIfMatch(key K, expected V) bool {
	rejectNilKey(key, "RemoveIfMatch")
	return c.table.removeIfMatch(key, expected)
}

func (c *cache[K, V]) Replace(key K, newValue V) (V, bool) {
	rejectNilKey(key, "Replace")
	rejectNilValue(newValue, "Replace")
	return c.table.replace(key, newValue)
}

func (c *cache[K, V]) ReplaceIfMatch(key K, oldValue, newValue V) bool {
	rejectNilKey(key, "ReplaceIfMatch")
	rejectNilValue(newValue, "ReplaceIfMatch")
	return c.table.replaceIfMatch(key, oldValue, newValue)
}

func (c *cache[K, V]) ContainsKey(key K) bool {
	rejectNilKey(key, "ContainsKey")
	return c.table.containsKey(key)
}

func (c *cache[K, V]) ContainsValue(v V) bool {
	return c.table.containsValue(v)
}

func (c *cache[K, V]) Size() int {
	return c.table.size()
}

func (c *cache[K, V]) Clear() {
	c.table.clear()
}

func (c *cache[K, V]) ForEach(fn func(K, V) bool) {
	c.table.forEach(fn)
}

func (c *cache[K, V]) Stats() CacheStats {
	return c.stats.snapshot()
}

func (c *cache[K, V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	<-c.cleanupDone
	return nil
}

// isNilGeneric reports whether v is the nil value of a pointer,
// interface, map, slice, chan, or func typed K/V — the only "absent"
// representations a generic comparable/any type can carry, mirroring
// Guava's rejection of null keys.
func isNilGeneric[T any](v T) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}

// rejectNilKey and rejectNilValue enforce "nil keys and nil values are
// rejected everywhere" for the Cache methods that return (V, bool) or
// bool and so have no error slot to report the violation through.
// GetOrCompute has an error return and reports a nil key as
// NewErrNilKey instead of panicking; these panic with the same
// structured errors so the failure still carries a SEGCACHE_*
// code for anyone recovering it.
func rejectNilKey[K any](key K, operation string) {
	if isNilGeneric(key) {
		panic(NewErrNilKey(operation))
	}
}

func rejectNilValue[V any](value V, operation string) {
	if isNilGeneric(value) {
		panic(NewErrNilValue(operation))
	}
}
