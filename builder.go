// builder.go: fluent construction API
//
// The fluent, one-shot-knob surface follows Guava's CacheBuilder;
// each setter checks its argument and records the first failure, which
// Build reports, with defaults applied for whatever was left unset.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import "time"

// CacheBuilder accumulates configuration for a Cache[K,V]. Every
// configuration setter may be called at most once; calling one twice,
// or combining the legacy ExpireAfter alias with either
// ExpireAfterWrite or ExpireAfterAccess, is reported by Build as an
// invalid-state error rather than silently overwriting the earlier
// value. Ticker, Logger and Name are the exceptions: a later call
// replaces an earlier one.
type CacheBuilder[K comparable, V any] struct {
	err error

	initialCapacity  int
	hasInitialCap    bool
	concurrencyLevel int
	hasConcurrency   bool

	maxSize    int
	hasMaxSize bool

	keyStrength   Strength
	hasKeyStrgth  bool
	valueStrength Strength
	hasValStrgth  bool

	writeTTL     time.Duration
	hasWriteTTL  bool
	accessTTL    time.Duration
	hasAccessTTL bool
	legacyTTL    time.Duration
	hasLegacyTTL bool

	removalListener RemovalListener[K, V]
	ticker          Ticker
	logger          Logger
	name            string
	keyEq           Equivalence[K]
	valEq           Equivalence[V]

	cleanupInterval time.Duration
	hasCleanupIntvl bool
}

// NewBuilder returns an empty CacheBuilder. Every knob defaults as
// documented on the corresponding setter; call Build to produce a
// Cache.
func NewBuilder[K comparable, V any]() *CacheBuilder[K, V] {
	return &CacheBuilder[K, V]{}
}

func (b *CacheBuilder[K, V]) fail(err error) *CacheBuilder[K, V] {
	if b.err == nil {
		b.err = err
	}
	return b
}

// InitialCapacity hints the number of entries the table should be
// sized for up front, across all segments combined. Default:
// DefaultInitialCapacity.
func (b *CacheBuilder[K, V]) InitialCapacity(n int) *CacheBuilder[K, V] {
	if b.hasInitialCap {
		return b.fail(NewErrInvalidState("InitialCapacity"))
	}
	if n < 0 {
		return b.fail(NewErrInvalidArgument("InitialCapacity", n))
	}
	b.initialCapacity, b.hasInitialCap = n, true
	return b
}

// ConcurrencyLevel hints the number of segments the table should use.
// It is rounded up to the next power of two and bounded by an internal
// maximum. Default: DefaultConcurrencyLevel.
func (b *CacheBuilder[K, V]) ConcurrencyLevel(n int) *CacheBuilder[K, V] {
	if b.hasConcurrency {
		return b.fail(NewErrInvalidState("ConcurrencyLevel"))
	}
	if n <= 0 {
		return b.fail(NewErrInvalidArgument("ConcurrencyLevel", n))
	}
	b.concurrencyLevel, b.hasConcurrency = n, true
	return b
}

// MaximumSize bounds the total number of entries the cache retains
// across all segments. A value of 0 produces a cache that never stores
// anything (every Put is immediately reported as a SIZE eviction).
// Default: unbounded.
func (b *CacheBuilder[K, V]) MaximumSize(n int) *CacheBuilder[K, V] {
	if b.hasMaxSize {
		return b.fail(NewErrInvalidState("MaximumSize"))
	}
	if n < 0 {
		return b.fail(NewErrInvalidArgument("MaximumSize", n))
	}
	b.maxSize, b.hasMaxSize = n, true
	return b
}

// WeakKeys configures the cache to hold keys with WeakStrength: keys
// are compared by identity and may be reclaimed as soon as they become
// unreachable elsewhere in the program. Default: StrongStrength.
func (b *CacheBuilder[K, V]) WeakKeys() *CacheBuilder[K, V] { return b.setKeyStrength(WeakStrength) }

// SoftKeys configures the cache to hold keys with SoftStrength: keys
// are compared by identity and resist reclamation until the segment's
// soft tier overflows; its capacity is the per-segment share of
// MaximumSize, or defaultSoftTierCapacity when no maximum size is set.
// Default: StrongStrength.
func (b *CacheBuilder[K, V]) SoftKeys() *CacheBuilder[K, V] { return b.setKeyStrength(SoftStrength) }

func (b *CacheBuilder[K, V]) setKeyStrength(s Strength) *CacheBuilder[K, V] {
	if b.hasKeyStrgth {
		return b.fail(NewErrInvalidState("WeakKeys/SoftKeys"))
	}
	b.keyStrength, b.hasKeyStrgth = s, true
	return b
}

// WeakValues configures the cache to hold values with WeakStrength.
// Default: StrongStrength.
func (b *CacheBuilder[K, V]) WeakValues() *CacheBuilder[K, V] {
	return b.setValueStrength(WeakStrength)
}

// SoftValues configures the cache to hold values with SoftStrength.
// Default: StrongStrength.
func (b *CacheBuilder[K, V]) SoftValues() *CacheBuilder[K, V] {
	return b.setValueStrength(SoftStrength)
}

func (b *CacheBuilder[K, V]) setValueStrength(s Strength) *CacheBuilder[K, V] {
	if b.hasValStrgth {
		return b.fail(NewErrInvalidState("WeakValues/SoftValues"))
	}
	b.valueStrength, b.hasValStrgth = s, true
	return b
}

// ExpireAfterWrite bounds how long an entry lives after it was last
// written, regardless of how often it is read. A value of 0 produces a
// cache that never stores anything. Cannot be combined with
// ExpireAfter. Default: no write-based expiration.
func (b *CacheBuilder[K, V]) ExpireAfterWrite(d time.Duration) *CacheBuilder[K, V] {
	if b.hasWriteTTL {
		return b.fail(NewErrInvalidState("ExpireAfterWrite"))
	}
	if b.hasLegacyTTL {
		return b.fail(NewErrInvalidState("ExpireAfterWrite+ExpireAfter"))
	}
	if d < 0 {
		return b.fail(NewErrInvalidArgument("ExpireAfterWrite", d))
	}
	b.writeTTL, b.hasWriteTTL = d, true
	return b
}

// ExpireAfterAccess bounds how long an entry lives after it was last
// read or inserted. Reads, inserts and published computations set the
// access time; overwriting an existing value through Put, Replace or
// ReplaceIfMatch refreshes only its write time, not its access time.
// A value of 0 produces a cache that never stores anything. Cannot be
// combined with ExpireAfter. Default: no access-based expiration.
func (b *CacheBuilder[K, V]) ExpireAfterAccess(d time.Duration) *CacheBuilder[K, V] {
	if b.hasAccessTTL {
		return b.fail(NewErrInvalidState("ExpireAfterAccess"))
	}
	if b.hasLegacyTTL {
		return b.fail(NewErrInvalidState("ExpireAfterAccess+ExpireAfter"))
	}
	if d < 0 {
		return b.fail(NewErrInvalidArgument("ExpireAfterAccess", d))
	}
	b.accessTTL, b.hasAccessTTL = d, true
	return b
}

// ExpireAfter is a legacy alias kept for callers migrating from a
// single-TTL configuration: it sets write-based expiration and cannot
// be combined with either ExpireAfterWrite or ExpireAfterAccess.
func (b *CacheBuilder[K, V]) ExpireAfter(d time.Duration) *CacheBuilder[K, V] {
	if b.hasLegacyTTL || b.hasWriteTTL || b.hasAccessTTL {
		return b.fail(NewErrInvalidState("ExpireAfter"))
	}
	if d < 0 {
		return b.fail(NewErrInvalidArgument("ExpireAfter", d))
	}
	b.legacyTTL, b.hasLegacyTTL = d, true
	return b
}

// RemovalListener registers a callback invoked synchronously whenever
// an entry leaves the cache. Default: none.
func (b *CacheBuilder[K, V]) RemovalListener(l RemovalListener[K, V]) *CacheBuilder[K, V] {
	if b.removalListener != nil {
		return b.fail(NewErrInvalidState("RemovalListener"))
	}
	b.removalListener = l
	return b
}

// Ticker overrides the cache's time source. Intended for tests;
// production callers should leave this unset. Default: a
// go-timecache-backed ticker.
func (b *CacheBuilder[K, V]) Ticker(t Ticker) *CacheBuilder[K, V] {
	b.ticker = t
	return b
}

// Logger overrides the cache's diagnostic logger. Default: NoOpLogger.
func (b *CacheBuilder[K, V]) Logger(l Logger) *CacheBuilder[K, V] {
	b.logger = l
	return b
}

// Name attaches a diagnostic name to the cache, surfaced in logging.
// Default: "".
func (b *CacheBuilder[K, V]) Name(name string) *CacheBuilder[K, V] {
	b.name = name
	return b
}

// KeyEquivalence overrides how keys are compared for STRONG-strength
// lookups. Ignored when WeakKeys/SoftKeys is set: those always compare
// by identity, regardless of any custom equivalence. Default: Go's
// native ==.
func (b *CacheBuilder[K, V]) KeyEquivalence(eq Equivalence[K]) *CacheBuilder[K, V] {
	if b.keyEq != nil {
		return b.fail(NewErrInvalidState("KeyEquivalence"))
	}
	b.keyEq = eq
	return b
}

// ValueEquivalence overrides how values are compared for
// ContainsValue/*IfMatch under STRONG strength. Default: Go's native
// ==.
func (b *CacheBuilder[K, V]) ValueEquivalence(eq Equivalence[V]) *CacheBuilder[K, V] {
	if b.valEq != nil {
		return b.fail(NewErrInvalidState("ValueEquivalence"))
	}
	b.valEq = eq
	return b
}

// CleanupInterval sets how often the background maintenance goroutine
// sweeps every segment. Default: defaultCleanupInterval.
func (b *CacheBuilder[K, V]) CleanupInterval(d time.Duration) *CacheBuilder[K, V] {
	if b.hasCleanupIntvl {
		return b.fail(NewErrInvalidState("CleanupInterval"))
	}
	if d < 0 {
		return b.fail(NewErrInvalidArgument("CleanupInterval", d))
	}
	b.cleanupInterval, b.hasCleanupIntvl = d, true
	return b
}

// Build validates the accumulated knobs and constructs the Cache. A
// degenerate configuration (MaximumSize(0), or any TTL of 0) produces a
// lightweight cache that never stores anything rather than a fully
// allocated segmented table.
func (b *CacheBuilder[K, V]) Build() (Cache[K, V], error) {
	if b.err != nil {
		return nil, b.err
	}

	writeTTL := b.writeTTL
	hasWriteTTL := b.hasWriteTTL
	if b.hasLegacyTTL {
		writeTTL, hasWriteTTL = b.legacyTTL, true
	}

	logger := b.logger
	if logger == nil {
		logger = NoOpLogger{}
	}
	ticker := b.ticker
	if ticker == nil {
		ticker = defaultTicker{}
	}

	initialCapacity := DefaultInitialCapacity
	if b.hasInitialCap {
		initialCapacity = b.initialCapacity
	}
	concurrencyLevel := DefaultConcurrencyLevel
	if b.hasConcurrency {
		concurrencyLevel = b.concurrencyLevel
	}
	cleanupInterval := time.Duration(defaultCleanupInterval)
	if b.hasCleanupIntvl {
		cleanupInterval = b.cleanupInterval
	}

	// publicCfg records the knobs exactly as the builder received them
	// (undivided maxSize, a single writeTTL/accessTTL pair), so
	// Configured.Config() reflects the caller's intent rather than the
	// per-segment arithmetic newTable performs internally.
	publicCfg := CacheConfig{
		Name:             b.name,
		InitialCapacity:  initialCapacity,
		ConcurrencyLevel: concurrencyLevel,
		MaximumSize:      NoMaxSize,
		KeyStrength:      b.keyStrength,
		ValueStrength:    b.valueStrength,
		WriteTTL:         NoTTL,
		AccessTTL:        NoTTL,
		CleanupInterval:  cleanupInterval,
	}
	if b.hasMaxSize {
		publicCfg.MaximumSize = b.maxSize
	}
	if hasWriteTTL {
		publicCfg.WriteTTL = writeTTL
	}
	if b.hasAccessTTL {
		publicCfg.AccessTTL = b.accessTTL
	}

	if b.hasMaxSize && b.maxSize == 0 {
		return newNullCache[K, V](RemovalSize, b.removalListener, logger, publicCfg), nil
	}
	if hasWriteTTL && writeTTL == 0 {
		return newNullCache[K, V](RemovalExpired, b.removalListener, logger, publicCfg), nil
	}
	if b.hasAccessTTL && b.accessTTL == 0 {
		return newNullCache[K, V](RemovalExpired, b.removalListener, logger, publicCfg), nil
	}

	cfg := segmentConfig[K, V]{
		keyStrength:   b.keyStrength,
		valueStrength: b.valueStrength,
		keyEq:         equivalenceFor(b.keyStrength, b.keyEq),
		valEq:         equivalenceFor(b.valueStrength, b.valEq),
		maxSize:       noMaxSize,
		writeTTL:      noTTL,
		accessTTL:     noTTL,
		ticker:        ticker,
		onRemoval:     b.removalListener,
		logger:        logger,
		stats:         newCacheStats(),
	}
	if b.hasMaxSize {
		cfg.maxSize = b.maxSize
	}
	if hasWriteTTL {
		cfg.writeTTL = int64(writeTTL)
	}
	if b.hasAccessTTL {
		cfg.accessTTL = int64(b.accessTTL)
	}

	t := newTable[K, V](concurrencyLevel, initialCapacity, cfg)

	return newCache[K, V](b.name, t, cfg.stats, ticker, logger, cleanupInterval, publicCfg), nil
}
