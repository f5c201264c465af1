// Package segcache provides a configurable, segmented, concurrent
// associative cache: a key-to-value mapping that supports simultaneous
// lookups and updates from many goroutines, with optional size-based
// eviction, time-based expiration, reference-strength control, and
// at-most-one-concurrent-computation semantics for missing values.
//
// # Overview
//
// The public surface is a fluent builder that assembles a cache
// instance from whatever combination of knobs is set. Each knob may be
// set at most once:
//
//	cache, err := segcache.NewBuilder[string, *User]().
//		MaximumSize(10_000).
//		ExpireAfterWrite(time.Hour).
//		RemovalListener(func(n segcache.RemovalNotification[string, *User]) {
//			log.Printf("evicted %v: %v", n.Key, n.Cause)
//		}).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	cache.Put("user:123", u)
//	v, ok := cache.Get("user:123")
//
// # Segmented design
//
// The cache is backed by a fixed array of independently lockable
// segments. A hash spreader mixes the key's hash before routing to a
// segment and a bucket, reducing collisions from poorly distributed
// user hash functions. Reads are lock-free on the fast path; writes and
// promotions acquire the owning segment's mutex only.
//
// # Computing semantics
//
// GetOrCompute guarantees at most one concurrent computation per key:
// concurrent callers for the same missing key block on the first
// caller's in-flight computation and all observe the same result (or
// the same failure). Concurrent computations for distinct keys run
// fully in parallel.
//
// # Reference strength
//
// Keys and values may be held STRONG (default, direct ownership),
// SOFT (owned but reclaimable under memory pressure), or WEAK
// (unowned, reclaimed as soon as nothing else references them). Any
// reclamation produces a COLLECTED removal notification before the
// affected entry can be observed by a reader again.
package segcache

// Version identifies the segcache module version, mirroring the release
// versioning convention used by its sibling agilira libraries.
const Version = "v0.1.0-dev"
