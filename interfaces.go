// interfaces.go: public interfaces for segcache
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package segcache

import (
	"context"
	"time"
)

// Cache is the standard concurrent-mapping surface produced by
// CacheBuilder.Build. All methods are safe for concurrent use. Nil keys
// and nil values are rejected everywhere a generic zero value is
// indistinguishable from "absent" cannot be relied upon, so K and V are
// expected to be comparable/usable types; pointer and interface typed
// V/K are checked against their zero value.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache. Returns the zero value and
	// false if absent, expired, or reclaimed. If a GetOrCompute
	// computation for key is in flight, Get blocks until it settles and
	// returns its value, or false if it failed.
	Get(key K) (value V, found bool)

	// GetOrCompute returns the cached value for key, computing it via
	// compute if absent. At most one computation per key runs at a
	// time; concurrent callers for the same key block on the first
	// caller's computation and observe the same outcome. ctx governs
	// only the calling goroutine's wait — cancelling it does not affect
	// a computation already in flight for other waiters.
	GetOrCompute(ctx context.Context, key K, compute func(context.Context) (V, error)) (V, error)

	// Put installs or replaces the value for key. Returns the previous
	// value, if any.
	Put(key K, value V) (previous V, hadPrevious bool)

	// PutIfAbsent installs value only if key is not already present.
	// Returns the existing value when the key was already present.
	PutIfAbsent(key K, value V) (existing V, present bool)

	// Remove deletes key unconditionally. Returns the removed value.
	Remove(key K) (previous V, removed bool)

	// RemoveIfMatch deletes key only if its current value equals
	// expected (per the configured value-equivalence). Returns whether
	// the removal happened.
	RemoveIfMatch(key K, expected V) bool

	// Replace updates key's value only if key is already present.
	// Returns the previous value.
	Replace(key K, newValue V) (previous V, replaced bool)

	// ReplaceIfMatch updates key's value only if its current value
	// equals oldValue. Returns whether the replacement happened.
	ReplaceIfMatch(key K, oldValue, newValue V) bool

	// ContainsKey reports whether key maps to a live, unexpired,
	// unreclaimed value.
	ContainsKey(key K) bool

	// ContainsValue reports whether any live entry's value equals v
	// per the configured value-equivalence. O(n) across all segments.
	ContainsValue(v V) bool

	// Size returns a weakly consistent count of live entries.
	Size() int

	// Clear removes every entry, firing an EXPLICIT removal
	// notification for each.
	Clear()

	// ForEach performs a weakly consistent traversal of live entries,
	// calling fn for each. Traversal stops early if fn returns false.
	// Never returns a reclaimed, expired, or still-computing entry.
	ForEach(fn func(key K, value V) bool)

	// Stats returns a snapshot of the cache's hit/miss/eviction
	// counters.
	Stats() CacheStats

	// Close stops the cache's background cleanup goroutine, if any.
	// The cache remains usable after Close; only the amortized
	// out-of-line cleanup stops.
	Close() error
}

// NoMaxSize reports that a CacheConfig carries no maximum-size bound.
const NoMaxSize = -1

// NoTTL reports that a CacheConfig carries no expiration for the
// corresponding TTL field.
const NoTTL time.Duration = -1

// CacheConfig is a snapshot of the one-shot knobs a CacheBuilder was
// given to produce a Cache, independent of however many segments the
// table was actually split into. Every Cache returned by
// CacheBuilder.Build also implements Configured, so callers — notably
// the persist package — can recover the knobs a running cache was
// built with.
type CacheConfig struct {
	Name             string
	InitialCapacity  int
	ConcurrencyLevel int
	MaximumSize      int           // NoMaxSize if unbounded
	KeyStrength      Strength
	ValueStrength    Strength
	WriteTTL         time.Duration // NoTTL if unset
	AccessTTL        time.Duration // NoTTL if unset
	CleanupInterval  time.Duration
}

// Configured is implemented by every Cache CacheBuilder.Build
// produces. It exposes the configuration the cache was built with so
// it can be reconstructed later, e.g. by persist.Load.
type Configured interface {
	Config() CacheConfig
}

// CacheStats is a point-in-time snapshot of cache performance counters.
type CacheStats struct {
	HitCount         uint64
	MissCount        uint64
	LoadSuccessCount uint64
	LoadFailureCount uint64
	EvictionCount    uint64
	TotalLoadNanos   int64
}

// HitRate returns the fraction of Get/GetOrCompute calls that were
// served from the cache, in [0, 1]. Returns 0 when no requests have
// been made yet.
func (s CacheStats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}

// LoadSuccessRate returns the fraction of computations that completed
// without error, in [0, 1].
func (s CacheStats) LoadSuccessRate() float64 {
	total := s.LoadSuccessCount + s.LoadFailureCount
	if total == 0 {
		return 0
	}
	return float64(s.LoadSuccessCount) / float64(total)
}

// AverageLoadPenaltyNanos returns the mean nanoseconds spent inside
// compute functions.
func (s CacheStats) AverageLoadPenaltyNanos() float64 {
	total := s.LoadSuccessCount + s.LoadFailureCount
	if total == 0 {
		return 0
	}
	return float64(s.TotalLoadNanos) / float64(total)
}

// Logger defines a minimal, allocation-free logging interface. segcache
// never logs on the hot path unless a non-default Logger is supplied
// and a cleanup decision is made.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// NoOpLogger discards everything. It is the default Logger so callers
// never need a nil check.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, keyvals ...interface{}) {}
func (NoOpLogger) Info(msg string, keyvals ...interface{})  {}
func (NoOpLogger) Warn(msg string, keyvals ...interface{})  {}
func (NoOpLogger) Error(msg string, keyvals ...interface{}) {}
