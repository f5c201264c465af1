// table.go: fixed segment array and hash spreading
//
// Key hashing uses hash/maphash.Comparable (Go 1.24+), which gives any
// comparable type — including the pointer-typed keys SOFT/WEAK
// strength actually stores — a fast, collision-resistant 64-bit hash
// without reflection or unsafe string aliasing. An avalanche mix is
// applied on top before any bits are used for indexing.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import "hash/maphash"

// table is the fixed-size array of segments a Cache routes every
// operation through. Segment count is fixed at construction (a power
// of two, bounded by maxSegments) and never changes; only the bucket
// array inside each segment resizes.
type table[K comparable, V any] struct {
	seed     maphash.Seed
	segments []*segment[K, V]
	segShift uint
}

// newTable builds a table with the smallest power-of-two segment count
// that is >= requestedSegments (bounded by maxSegments), distributing
// initialCapacity and cfg.maxSize evenly across segments.
func newTable[K comparable, V any](requestedSegments, initialCapacity int, cfg segmentConfig[K, V]) *table[K, V] {
	n := 1
	for n < requestedSegments {
		n <<= 1
	}
	if n > maxSegments {
		n = maxSegments
	}

	perSegCap := initialCapacity / n
	if perSegCap < 1 {
		perSegCap = 1
	}

	perSegCfg := cfg
	if cfg.maxSize != noMaxSize {
		perSegCfg.maxSize = (cfg.maxSize + n - 1) / n // ceil(total/n), per segment
	}

	shift := uint(64)
	for c := n; c > 1; c >>= 1 {
		shift--
	}

	t := &table[K, V]{
		seed:     maphash.MakeSeed(),
		segShift: shift,
	}
	t.segments = make([]*segment[K, V], n)
	for i := range t.segments {
		t.segments[i] = newSegment[K, V](perSegCap, perSegCfg)
	}
	return t
}

// hashKey computes the pre-spread hash for key.
func (t *table[K, V]) hashKey(key K) uint64 {
	return spread(maphash.Comparable(t.seed, key))
}

// spread applies an avalanche mix (Guava's Hashing.smear does the
// analogous thing for Integer.hashCode()) so that both the top bits
// used to pick a segment and the low bits used to pick a bucket within
// it are well mixed.
func spread(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// segmentFor selects a segment by the top bits of the spread hash;
// bucket indexing inside the segment masks the low bits, so the two
// never overlap and every bucket of every segment stays reachable.
func (t *table[K, V]) segmentFor(hash uint64) *segment[K, V] {
	return t.segments[hash>>t.segShift]
}

func (t *table[K, V]) get(key K) (V, bool) {
	hash := t.hashKey(key)
	return t.segmentFor(hash).get(key, hash)
}

func (t *table[K, V]) put(key K, value V) (V, bool) {
	hash := t.hashKey(key)
	return t.segmentFor(hash).put(key, hash, value, false)
}

func (t *table[K, V]) putIfAbsent(key K, value V) (V, bool) {
	hash := t.hashKey(key)
	return t.segmentFor(hash).put(key, hash, value, true)
}

func (t *table[K, V]) remove(key K) (V, bool) {
	hash := t.hashKey(key)
	return t.segmentFor(hash).remove(key, hash)
}

func (t *table[K, V]) removeIfMatch(key K, expected V) bool {
	hash := t.hashKey(key)
	return t.segmentFor(hash).removeIfMatch(key, hash, expected)
}

func (t *table[K, V]) replace(key K, newValue V) (V, bool) {
	hash := t.hashKey(key)
	return t.segmentFor(hash).replace(key, hash, newValue)
}

func (t *table[K, V]) replaceIfMatch(key K, oldValue, newValue V) bool {
	hash := t.hashKey(key)
	return t.segmentFor(hash).replaceIfMatch(key, hash, oldValue, newValue)
}

func (t *table[K, V]) containsKey(key K) bool {
	hash := t.hashKey(key)
	return t.segmentFor(hash).containsKey(key, hash)
}

func (t *table[K, V]) containsValue(v V) bool {
	for _, s := range t.segments {
		if s.containsValue(v) {
			return true
		}
	}
	return false
}

func (t *table[K, V]) size() int {
	total := 0
	for _, s := range t.segments {
		total += s.size()
	}
	return total
}

func (t *table[K, V]) clear() {
	for _, s := range t.segments {
		s.clear()
	}
}

// forEach iterates every segment in turn. It is weakly consistent: it
// reflects some, but not necessarily all, concurrent modifications made
// during the traversal, and never returns the same live entry twice.
func (t *table[K, V]) forEach(fn func(K, V) bool) {
	for _, s := range t.segments {
		if !s.forEach(fn) {
			return
		}
	}
}

func (t *table[K, V]) runCleanupAll() {
	for _, s := range t.segments {
		s.runCleanup()
	}
}
