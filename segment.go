// segment.go: independently lockable shard of the concurrent table
//
// One mutex per shard, with the eviction lists threaded intrusively
// through the entry itself rather than boxed into a
// container/list.Element. Each segment carries two such lists (recency
// for access-TTL/LRU, write-order for write-TTL) plus a reclamation
// queue for SOFT/WEAK references collected by the runtime.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import (
	"sync"
	"sync/atomic"
)

// noTTL marks a TTL knob as unset, distinct from a configured zero
// duration (which means "expire immediately").
const noTTL int64 = -1

// noMaxSize marks the max-size knob as unset.
const noMaxSize int = -1

// bucketArray is the segment's chained hash array. It is replaced
// wholesale on resize; readers load it once via segment.table and walk
// it without the segment lock.
type bucketArray[K comparable, V any] struct {
	buckets []atomic.Pointer[entry[K, V]]
	mask    uint64
}

func newBucketArray[K comparable, V any](size int) *bucketArray[K, V] {
	return &bucketArray[K, V]{
		buckets: make([]atomic.Pointer[entry[K, V]], size),
		mask:    uint64(size - 1),
	}
}

// segmentConfig carries the knobs a segment needs, pre-resolved by the
// table/builder so the segment itself never sees raw CacheBuilder
// state.
type segmentConfig[K comparable, V any] struct {
	keyStrength   Strength
	valueStrength Strength
	keyEq         Equivalence[K]
	valEq         Equivalence[V]
	maxSize       int // noMaxSize if unset
	writeTTL      int64
	accessTTL     int64
	ticker        Ticker
	onRemoval     RemovalListener[K, V]
	logger        Logger
	stats         *cacheStats
}

// segment is an independently lockable shard: its own bucket array, a
// recency list for access-TTL/LRU, a write-order list for write-TTL,
// and a queue of entries whose key or value reference has been
// reclaimed by the runtime and is awaiting cleanup.
type segment[K comparable, V any] struct {
	mu sync.Mutex

	table     atomic.Pointer[bucketArray[K, V]]
	count     int
	threshold int

	// pendingComputing is how many of the entries counted in count are
	// computingEntry placeholders awaiting publication. A pending
	// computation does not count toward max-size or Size() until it
	// completes, even though its placeholder is already linked into
	// the bucket chain (so a concurrent Get can find it and wait on
	// it).
	pendingComputing int

	// recency list: head is oldest-accessed, tail is newest.
	recencyHead, recencyTail *entry[K, V]
	// write-order list: head is oldest-written, tail is newest.
	writeHead, writeTail *entry[K, V]

	reclaimed chan *entry[K, V]

	// promotion batching: when no access TTL is set, reads are
	// recorded here instead of moving the entry to the tail of the
	// recency list immediately; runCleanup drains this buffer. Guarded
	// by its own mutex so such reads never contend with the segment's
	// write lock. With an access TTL, recordRead promotes under s.mu.
	promoMu  sync.Mutex
	promoBuf []*entry[K, V]

	// queued accumulates removal notifications discovered while s.mu is
	// held; callers drain it with takeQueuedLocked immediately before
	// unlocking and fire the notifications afterward, since a removal
	// listener must never run with the segment lock held.
	queued []queuedRemoval[K, V]

	keySoftTier   *softTier[K]
	valueSoftTier *softTier[V]

	cfg segmentConfig[K, V]
}

// takeQueuedLocked returns and clears the pending removal notifications.
// Must be called with s.mu held, immediately before Unlock.
func (s *segment[K, V]) takeQueuedLocked() []queuedRemoval[K, V] {
	q := s.queued
	s.queued = nil
	return q
}

// fireQueued dispatches previously-queued removal notifications. Must
// be called without s.mu held.
func (s *segment[K, V]) fireQueued(q []queuedRemoval[K, V]) {
	for _, r := range q {
		s.fireRemoval(r.key, r.hasKey, r.value, r.hasValue, r.cause)
	}
}

func newSegment[K comparable, V any](initialCapacity int, cfg segmentConfig[K, V]) *segment[K, V] {
	size := 1
	for size < initialCapacity {
		size <<= 1
	}
	if size < 1 {
		size = 1
	}
	s := &segment[K, V]{
		reclaimed: make(chan *entry[K, V], 128),
		cfg:       cfg,
	}
	s.table.Store(newBucketArray[K, V](size))
	s.threshold = int(float64(size) * segmentLoadFactor)
	if cfg.keyStrength == SoftStrength {
		s.keySoftTier = newSoftTier[K](cfg.maxSize)
	}
	if cfg.valueStrength == SoftStrength {
		s.valueSoftTier = newSoftTier[V](cfg.maxSize)
	}
	return s
}

func (s *segment[K, V]) now() int64 { return s.cfg.ticker.NowNanos() }

// --- lookup helpers -------------------------------------------------

func (s *segment[K, V]) keyMatches(e *entry[K, V], key K, hash uint64) bool {
	if e.hash != hash {
		return false
	}
	live, ok := e.key.get()
	if !ok {
		return false
	}
	return s.cfg.keyEq(live, key)
}

// --- Get --------------------------------------------------------------

// get is the lock-free fast path: it loads the bucket head and walks
// the chain via the entry's atomically-published next pointer. It
// falls back to the locked slow path when it meets a pending
// computation, a reclaimed value, or an unpublished value.
func (s *segment[K, V]) get(key K, hash uint64) (V, bool) {
	t := s.table.Load()
	idx := hash & t.mask
	for e := t.buckets[idx].Load(); e != nil; e = e.next.Load() {
		if !s.keyMatches(e, key, hash) {
			continue
		}
		if e.computing.Load() != nil {
			return s.getSlow(key, hash)
		}
		vr := e.val.Load()
		if vr == nil {
			return s.getSlow(key, hash)
		}
		v, ok := vr.get()
		if !ok {
			// value reference collected; let the slow path unlink it
			// under lock and report a miss.
			return s.getSlow(key, hash)
		}
		s.recordRead(e)
		var zero V
		_ = zero
		return v, true
	}
	var zero V
	return zero, false
}

// getSlow re-probes under the segment lock to resolve a pending
// computation or a value that looked absent/reclaimed on the fast
// path.
func (s *segment[K, V]) getSlow(key K, hash uint64) (V, bool) {
	s.mu.Lock()
	e := s.findLocked(key, hash)
	if e == nil {
		s.mu.Unlock()
		var zero V
		return zero, false
	}
	if ce := e.computing.Load(); ce != nil {
		s.mu.Unlock()
		<-ce.latch
		if ce.state == computeDone {
			return ce.value, true
		}
		var zero V
		return zero, false
	}
	vr := e.val.Load()
	if vr == nil {
		s.mu.Unlock()
		var zero V
		return zero, false
	}
	v, ok := vr.get()
	if !ok {
		k, hasKey := e.key.get()
		s.unlinkLocked(e)
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		// Always fire: invariant 5 requires one COLLECTED notification
		// per reclaimed entry, even when the key reference is also
		// already dead (HasKey=false).
		s.fireRemoval(k, hasKey, v, false, RemovalCollected)
		var zero V
		return zero, false
	}
	s.promoteLocked(e)
	s.mu.Unlock()
	return v, true
}

// containsKey reports whether a live, unexpired, unreclaimed value is
// present for key. Unlike get, it never blocks on a pending
// computation: a computing placeholder is absent from every query
// except get, so it is treated as not-present here, the same way
// forEach treats one.
func (s *segment[K, V]) containsKey(key K, hash uint64) bool {
	t := s.table.Load()
	idx := hash & t.mask
	for e := t.buckets[idx].Load(); e != nil; e = e.next.Load() {
		if !s.keyMatches(e, key, hash) {
			continue
		}
		if e.computing.Load() != nil {
			return false
		}
		vr := e.val.Load()
		if vr == nil {
			return false
		}
		_, ok := vr.get()
		return ok
	}
	return false
}

// findLocked walks the bucket this key hashes to. Must be called with
// s.mu held.
func (s *segment[K, V]) findLocked(key K, hash uint64) *entry[K, V] {
	t := s.table.Load()
	idx := hash & t.mask
	for e := t.buckets[idx].Load(); e != nil; e = e.next.Load() {
		if s.keyMatches(e, key, hash) {
			return e
		}
	}
	return nil
}

// --- Put / PutIfAbsent ------------------------------------------------

func (s *segment[K, V]) put(key K, hash uint64, value V, onlyIfAbsent bool) (V, bool) {
	if s.cfg.maxSize == 0 {
		s.fireRemoval(key, true, value, true, RemovalSize)
		var zero V
		return zero, false
	}
	if s.cfg.writeTTL == 0 {
		s.fireRemoval(key, true, value, true, RemovalExpired)
		var zero V
		return zero, false
	}

	s.mu.Lock()
	s.runCleanupLocked()

	if e := s.findLocked(key, hash); e != nil {
		if onlyIfAbsent && e.computing.Load() == nil {
			q := s.takeQueuedLocked()
			vr := e.val.Load()
			var cur V
			if vr != nil {
				cur, _ = vr.get()
			}
			s.mu.Unlock()
			s.fireQueued(q)
			return cur, true
		}
		wasComputing := false
		var demoted *computingEntry[K, V]
		if ce := e.computing.Load(); ce != nil {
			// An external put wins over an in-flight computation: the
			// computing entry is demoted to an ordinary entry; every
			// goroutine already waiting on the latch observes the put
			// value, and the running computation's own result is
			// discarded when it later tries to settle on a demoted
			// entry (see publishComputing).
			e.computing.Store(nil)
			s.pendingComputing--
			wasComputing = true
			demoted = ce
		}
		prevRef := e.val.Load()
		var prev V
		var hadPrev bool
		if prevRef != nil {
			prev, hadPrev = prevRef.get()
		}
		e.val.Store(s.wrapValueLocked(e, value))
		e.writeNanos = s.now()
		if wasComputing {
			// A placeholder is only ever linked into the bucket chain
			// (see linkPlaceholderLocked); it joins the ordering lists
			// here, now that it holds a real value.
			e.accessNanos = e.writeNanos
			if s.cfg.accessTTL != noTTL || s.cfg.maxSize != noMaxSize {
				s.appendRecencyLocked(e)
			}
			if s.cfg.writeTTL != noTTL {
				s.appendWriteLocked(e)
			}
		} else {
			s.moveToWriteTailLocked(e)
		}
		s.enforceLimitsLocked()
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		if demoted != nil {
			demoted.settle(value, nil)
		}
		if hadPrev {
			s.fireRemoval(key, true, prev, true, RemovalReplaced)
		}
		return prev, hadPrev
	}

	e := s.newEntryLocked(key, hash, value)
	s.linkLocked(e)
	s.enforceLimitsLocked()
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	var zero V
	return zero, false
}

func newStrongValPtr[V any](v V) *ref[V] {
	r := newStrongRef(v)
	return &r
}

// --- Remove / RemoveIfMatch -------------------------------------------

func (s *segment[K, V]) remove(key K, hash uint64) (V, bool) {
	s.mu.Lock()
	s.runCleanupLocked()
	e := s.findLocked(key, hash)
	if e == nil {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		var zero V
		return zero, false
	}
	vr := e.val.Load()
	var v V
	var ok bool
	if vr != nil {
		v, ok = vr.get()
	}
	if e.computing.Load() != nil {
		s.pendingComputing--
	}
	s.unlinkLocked(e)
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	if ok {
		s.fireRemoval(key, true, v, true, RemovalExplicit)
	}
	return v, ok
}

func (s *segment[K, V]) removeIfMatch(key K, hash uint64, expected V) bool {
	s.mu.Lock()
	s.runCleanupLocked()
	e := s.findLocked(key, hash)
	if e == nil {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		return false
	}
	vr := e.val.Load()
	if vr == nil {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		return false
	}
	v, ok := vr.get()
	if !ok || !s.cfg.valEq(v, expected) {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		return false
	}
	s.unlinkLocked(e)
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	s.fireRemoval(key, true, v, true, RemovalExplicit)
	return true
}

// --- Replace / ReplaceIfMatch ------------------------------------------

func (s *segment[K, V]) replace(key K, hash uint64, newValue V) (V, bool) {
	s.mu.Lock()
	s.runCleanupLocked()
	e := s.findLocked(key, hash)
	if e == nil || e.computing.Load() != nil {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		var zero V
		return zero, false
	}
	vr := e.val.Load()
	var prev V
	var ok bool
	if vr != nil {
		prev, ok = vr.get()
	}
	if !ok {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		var zero V
		return zero, false
	}
	e.val.Store(s.wrapValueLocked(e, newValue))
	e.writeNanos = s.now()
	s.moveToWriteTailLocked(e)
	s.enforceLimitsLocked()
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	s.fireRemoval(key, true, prev, true, RemovalReplaced)
	return prev, true
}

func (s *segment[K, V]) replaceIfMatch(key K, hash uint64, oldValue, newValue V) bool {
	s.mu.Lock()
	s.runCleanupLocked()
	e := s.findLocked(key, hash)
	if e == nil || e.computing.Load() != nil {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		return false
	}
	vr := e.val.Load()
	if vr == nil {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		return false
	}
	v, ok := vr.get()
	if !ok || !s.cfg.valEq(v, oldValue) {
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		return false
	}
	e.val.Store(s.wrapValueLocked(e, newValue))
	e.writeNanos = s.now()
	s.moveToWriteTailLocked(e)
	s.enforceLimitsLocked()
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	s.fireRemoval(key, true, v, true, RemovalReplaced)
	return true
}

// --- GetOrCompute protocol ---------------------------------------------

// acquireComputing resolves key to exactly one of three outcomes:
//   - a live value (found=true)
//   - someone else's in-flight computation (owner=false, ce is theirs)
//   - ownership of a newly installed computingEntry this caller must run
//     the user function for and then settle via publishComputing or
//     abandonComputing (owner=true)
func (s *segment[K, V]) acquireComputing(key K, hash uint64) (value V, found bool, ce *computingEntry[K, V], owner bool, e *entry[K, V]) {
	s.mu.Lock()
	s.runCleanupLocked()

	if existing := s.findLocked(key, hash); existing != nil {
		if pending := existing.computing.Load(); pending != nil {
			q := s.takeQueuedLocked()
			s.mu.Unlock()
			s.fireQueued(q)
			return value, false, pending, false, existing
		}
		if vr := existing.val.Load(); vr != nil {
			if v, ok := vr.get(); ok {
				s.promoteLocked(existing)
				q := s.takeQueuedLocked()
				s.mu.Unlock()
				s.fireQueued(q)
				return v, true, nil, false, existing
			}
		}
		// Value reference already reclaimed: reuse this bucket slot as
		// the new computation's placeholder. It drops out of the
		// ordering lists while pending, exactly like a brand new
		// placeholder, and rejoins them in publishComputing.
		newCE := newComputingEntry[K, V]()
		existing.computing.Store(newCE)
		s.removeRecencyLocked(existing)
		s.removeWriteLocked(existing)
		s.pendingComputing++
		q := s.takeQueuedLocked()
		s.mu.Unlock()
		s.fireQueued(q)
		return value, false, newCE, true, existing
	}

	newCE := newComputingEntry[K, V]()
	placeholder := &entry[K, V]{hash: hash}
	placeholder.key = s.wrapKeyLocked(placeholder, key)
	placeholder.computing.Store(newCE)
	s.linkPlaceholderLocked(placeholder)
	s.pendingComputing++
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	return value, false, newCE, true, placeholder
}

// linkPlaceholderLocked links a computing placeholder into the bucket
// chain only — it joins the recency/write lists later, at
// publishComputing time, once it has a real access/write timestamp.
func (s *segment[K, V]) linkPlaceholderLocked(e *entry[K, V]) {
	t := s.table.Load()
	idx := e.hash & t.mask
	e.next.Store(t.buckets[idx].Load())
	t.buckets[idx].Store(e)
	s.count++
	s.maybeResizeLocked()
}

// publishComputing installs value as e's live value and wakes every
// waiter. If e was concurrently demoted by an external Put (the "put
// wins" rule) or removed outright, the freshly computed
// value is silently discarded.
func (s *segment[K, V]) publishComputing(e *entry[K, V], ce *computingEntry[K, V], value V) {
	s.mu.Lock()
	if s.stillLinked(e) && e.computing.Load() == ce {
		e.val.Store(s.wrapValueLocked(e, value))
		now := s.now()
		e.accessNanos = now
		e.writeNanos = now
		e.computing.Store(nil)
		s.pendingComputing--
		if s.cfg.accessTTL != noTTL || s.cfg.maxSize != noMaxSize {
			s.appendRecencyLocked(e)
		}
		if s.cfg.writeTTL != noTTL {
			s.appendWriteLocked(e)
		}
		s.enforceLimitsLocked()
	}
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	ce.settle(value, nil)
}

// abandonComputing tears down a failed computation's placeholder,
// unless it was concurrently demoted by an external write — in which
// case the entry now holds a real value that must not be touched.
func (s *segment[K, V]) abandonComputing(e *entry[K, V], ce *computingEntry[K, V], err error) {
	s.mu.Lock()
	if s.stillLinked(e) && e.computing.Load() == ce {
		s.unlinkLocked(e)
		s.pendingComputing--
	}
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
	var zero V
	ce.settle(zero, err)
}

// --- Clear / Size / ForEach --------------------------------------------

func (s *segment[K, V]) clear() {
	s.mu.Lock()
	t := s.table.Load()
	var removed []*entry[K, V]
	for i := range t.buckets {
		for e := t.buckets[i].Load(); e != nil; e = e.next.Load() {
			removed = append(removed, e)
		}
		t.buckets[i].Store(nil)
	}
	s.count = 0
	s.pendingComputing = 0
	s.recencyHead, s.recencyTail = nil, nil
	s.writeHead, s.writeTail = nil, nil
	s.mu.Unlock()

	for _, e := range removed {
		if e.computing.Load() != nil {
			continue // in-flight computation, never visible, nothing to notify
		}
		k, hasKey := e.key.get()
		var v V
		hasValue := false
		if vr := e.val.Load(); vr != nil {
			v, hasValue = vr.get()
		}
		s.fireRemoval(k, hasKey, v, hasValue, RemovalExplicit)
	}
}

func (s *segment[K, V]) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count - s.pendingComputing
}

func (s *segment[K, V]) forEach(fn func(K, V) bool) bool {
	t := s.table.Load()
	for i := range t.buckets {
		for e := t.buckets[i].Load(); e != nil; e = e.next.Load() {
			if e.computing.Load() != nil {
				continue
			}
			vr := e.val.Load()
			if vr == nil {
				continue
			}
			v, ok := vr.get()
			if !ok {
				continue
			}
			k, ok := e.key.get()
			if !ok {
				continue
			}
			if !fn(k, v) {
				return false
			}
		}
	}
	return true
}

func (s *segment[K, V]) containsValue(v V) bool {
	found := false
	s.forEach(func(_ K, val V) bool {
		if s.cfg.valEq(val, v) {
			found = true
			return false
		}
		return true
	})
	return found
}

// --- entry construction / linking (s.mu held) --------------------------

func (s *segment[K, V]) newEntryLocked(key K, hash uint64, value V) *entry[K, V] {
	e := &entry[K, V]{hash: hash}
	e.key = s.wrapKeyLocked(e, key)
	e.val.Store(s.wrapValueLocked(e, value))
	now := s.now()
	e.accessNanos = now
	e.writeNanos = now
	return e
}

func (s *segment[K, V]) wrapKeyLocked(e *entry[K, V], key K) ref[K] {
	if s.cfg.keyStrength == StrongStrength {
		return newStrongRef(key)
	}
	r, box := newReclaimableRef(s.cfg.keyStrength, key, s.onReclaimed(e))
	if s.cfg.keyStrength == SoftStrength {
		s.keySoftTier.retain(box)
	}
	return r
}

func (s *segment[K, V]) wrapValueLocked(e *entry[K, V], value V) *ref[V] {
	if s.cfg.valueStrength == StrongStrength {
		return newStrongValPtr(value)
	}
	r, box := newReclaimableRef(s.cfg.valueStrength, value, s.onReclaimed(e))
	if s.cfg.valueStrength == SoftStrength {
		s.valueSoftTier.retain(box)
	}
	return &r
}

// onReclaimed returns the disposal callback registered against a boxed
// key/value cell: it enqueues e onto the segment's reclamation queue
// without blocking, from whatever goroutine the runtime runs the
// cleanup on.
func (s *segment[K, V]) onReclaimed(e *entry[K, V]) func() {
	return func() {
		select {
		case s.reclaimed <- e:
		default:
			// Queue full: e is not enqueued. A later get that finds
			// its value dead unlinks it under the lock; otherwise it
			// stays linked until expiration, size eviction or Clear
			// removes it.
		}
	}
}

func (s *segment[K, V]) linkLocked(e *entry[K, V]) {
	t := s.table.Load()
	idx := e.hash & t.mask
	e.next.Store(t.buckets[idx].Load())
	t.buckets[idx].Store(e)
	s.count++

	if s.cfg.accessTTL != noTTL || s.cfg.maxSize != noMaxSize {
		s.appendRecencyLocked(e)
	}
	if s.cfg.writeTTL != noTTL {
		s.appendWriteLocked(e)
	}
	s.maybeResizeLocked()
}

func (s *segment[K, V]) unlinkLocked(e *entry[K, V]) {
	t := s.table.Load()
	idx := e.hash & t.mask
	var prev *entry[K, V]
	for cur := t.buckets[idx].Load(); cur != nil; cur = cur.next.Load() {
		if cur == e {
			if prev == nil {
				t.buckets[idx].Store(cur.next.Load())
			} else {
				prev.next.Store(cur.next.Load())
			}
			s.count--
			break
		}
		prev = cur
	}
	s.removeRecencyLocked(e)
	s.removeWriteLocked(e)
}

// --- recency / write ordering lists (s.mu held) -------------------------

func (s *segment[K, V]) appendRecencyLocked(e *entry[K, V]) {
	if e.inRecency {
		return
	}
	e.prevAccess, e.nextAccess = s.recencyTail, nil
	if s.recencyTail != nil {
		s.recencyTail.nextAccess = e
	} else {
		s.recencyHead = e
	}
	s.recencyTail = e
	e.inRecency = true
}

func (s *segment[K, V]) removeRecencyLocked(e *entry[K, V]) {
	if !e.inRecency {
		return
	}
	if e.prevAccess != nil {
		e.prevAccess.nextAccess = e.nextAccess
	} else {
		s.recencyHead = e.nextAccess
	}
	if e.nextAccess != nil {
		e.nextAccess.prevAccess = e.prevAccess
	} else {
		s.recencyTail = e.prevAccess
	}
	e.prevAccess, e.nextAccess = nil, nil
	e.inRecency = false
}

func (s *segment[K, V]) moveToRecencyTailLocked(e *entry[K, V]) {
	if s.recencyTail == e {
		return
	}
	s.removeRecencyLocked(e)
	s.appendRecencyLocked(e)
}

func (s *segment[K, V]) appendWriteLocked(e *entry[K, V]) {
	if e.inWrite {
		return
	}
	e.prevWrite, e.nextWrite = s.writeTail, nil
	if s.writeTail != nil {
		s.writeTail.nextWrite = e
	} else {
		s.writeHead = e
	}
	s.writeTail = e
	e.inWrite = true
}

func (s *segment[K, V]) removeWriteLocked(e *entry[K, V]) {
	if !e.inWrite {
		return
	}
	if e.prevWrite != nil {
		e.prevWrite.nextWrite = e.nextWrite
	} else {
		s.writeHead = e.nextWrite
	}
	if e.nextWrite != nil {
		e.nextWrite.prevWrite = e.prevWrite
	} else {
		s.writeTail = e.prevWrite
	}
	e.prevWrite, e.nextWrite = nil, nil
	e.inWrite = false
}

func (s *segment[K, V]) moveToWriteTailLocked(e *entry[K, V]) {
	if s.writeTail == e {
		return
	}
	s.removeWriteLocked(e)
	s.appendWriteLocked(e)
}

// --- promotion batching --------------------------------------------------

// recordRead registers a read for promotion. With an access TTL the
// entry is promoted at once under the segment lock, so its access time
// is the time of this read; otherwise (size bound only) the read is
// buffered and applied by the next runCleanup, avoiding a segment lock
// acquisition on every cache hit.
func (s *segment[K, V]) recordRead(e *entry[K, V]) {
	if s.cfg.accessTTL == noTTL && s.cfg.maxSize == noMaxSize {
		return
	}
	if s.cfg.accessTTL != noTTL {
		s.mu.Lock()
		if e.inRecency {
			s.promoteLocked(e)
		}
		s.mu.Unlock()
		return
	}
	s.promoMu.Lock()
	if len(s.promoBuf) < promotionBufferSize {
		s.promoBuf = append(s.promoBuf, e)
	}
	s.promoMu.Unlock()
}

func (s *segment[K, V]) promoteLocked(e *entry[K, V]) {
	e.accessNanos = s.now()
	s.moveToRecencyTailLocked(e)
}

// drainPromotionsLocked applies every buffered read to the recency
// list. Called at the top of runCleanupLocked.
func (s *segment[K, V]) drainPromotionsLocked() {
	s.promoMu.Lock()
	buf := s.promoBuf
	s.promoBuf = nil
	s.promoMu.Unlock()
	for _, e := range buf {
		if !e.inRecency {
			continue // unlinked since the read was recorded
		}
		s.promoteLocked(e)
	}
}

// --- resize ---------------------------------------------------------------

func (s *segment[K, V]) maybeResizeLocked() {
	if s.count <= s.threshold {
		return
	}
	old := s.table.Load()
	newSize := len(old.buckets) * 2
	nt := newBucketArray[K, V](newSize)
	for i := range old.buckets {
		for e := old.buckets[i].Load(); e != nil; {
			nextEntry := e.next.Load()
			idx := e.hash & nt.mask
			e.next.Store(nt.buckets[idx].Load())
			nt.buckets[idx].Store(e)
			e = nextEntry
		}
	}
	s.table.Store(nt)
	s.threshold = int(float64(newSize) * segmentLoadFactor)
}

// --- eviction / expiration engine -----------------------------------------

// runCleanup is the entry point used by a cleanup executor running the
// sweep out of line, off the caller's goroutine.
func (s *segment[K, V]) runCleanup() {
	s.mu.Lock()
	s.runCleanupLocked()
	q := s.takeQueuedLocked()
	s.mu.Unlock()
	s.fireQueued(q)
}

// runCleanupLocked is the four-step maintenance loop: drain reclaimed
// references, expire by access time, expire by write time, then trim
// to the size bound. Must be called with s.mu held. Removal
// notifications are queued and fired by the caller after releasing the
// lock, because a removal listener must never run while the segment
// lock is held.
func (s *segment[K, V]) runCleanupLocked() {
	s.drainPromotionsLocked()

	pending := s.drainReclaimedLocked()
	pending = append(pending, s.expireAccessLocked()...)
	pending = append(pending, s.expireWriteLocked()...)
	pending = append(pending, s.evictToSizeLocked()...)

	if len(pending) == 0 {
		return
	}
	// Defer firing until after unlock: stash on the segment for the
	// calling operation to pick up via takeQueuedLocked.
	s.queued = append(s.queued, pending...)
}

type queuedRemoval[K comparable, V any] struct {
	key      K
	value    V
	hasKey   bool
	hasValue bool
	cause    RemovalCause
}

func (s *segment[K, V]) drainReclaimedLocked() []queuedRemoval[K, V] {
	var out []queuedRemoval[K, V]
	for {
		select {
		case e := <-s.reclaimed:
			if s.stillLinked(e) {
				k, hasKey := e.key.get()
				var v V
				hasValue := false
				if vr := e.val.Load(); vr != nil {
					v, hasValue = vr.get()
				}
				s.unlinkLocked(e)
				// Fire unconditionally: invariant 5 requires one
				// COLLECTED notification per reclaimed entry even when
				// both the key and value reference are already dead.
				out = append(out, queuedRemoval[K, V]{key: k, value: v, hasKey: hasKey, hasValue: hasValue, cause: RemovalCollected})
			}
		default:
			return out
		}
	}
}

func (s *segment[K, V]) stillLinked(e *entry[K, V]) bool {
	t := s.table.Load()
	idx := e.hash & t.mask
	for cur := t.buckets[idx].Load(); cur != nil; cur = cur.next.Load() {
		if cur == e {
			return true
		}
	}
	return false
}

func (s *segment[K, V]) expireAccessLocked() []queuedRemoval[K, V] {
	if s.cfg.accessTTL == noTTL {
		return nil
	}
	var out []queuedRemoval[K, V]
	cutoff := s.now() - s.cfg.accessTTL
	for e := s.recencyHead; e != nil && e.accessNanos <= cutoff; e = s.recencyHead {
		k, hasKey := e.key.get()
		var v V
		hasValue := false
		if vr := e.val.Load(); vr != nil {
			v, hasValue = vr.get()
		}
		s.unlinkLocked(e)
		out = append(out, queuedRemoval[K, V]{key: k, value: v, hasKey: hasKey, hasValue: hasValue, cause: RemovalExpired})
	}
	return out
}

func (s *segment[K, V]) expireWriteLocked() []queuedRemoval[K, V] {
	if s.cfg.writeTTL == noTTL {
		return nil
	}
	var out []queuedRemoval[K, V]
	cutoff := s.now() - s.cfg.writeTTL
	for e := s.writeHead; e != nil && e.writeNanos <= cutoff; e = s.writeHead {
		k, hasKey := e.key.get()
		var v V
		hasValue := false
		if vr := e.val.Load(); vr != nil {
			v, hasValue = vr.get()
		}
		s.unlinkLocked(e)
		out = append(out, queuedRemoval[K, V]{key: k, value: v, hasKey: hasKey, hasValue: hasValue, cause: RemovalExpired})
	}
	return out
}

func (s *segment[K, V]) evictToSizeLocked() []queuedRemoval[K, V] {
	if s.cfg.maxSize == noMaxSize {
		return nil
	}
	var out []queuedRemoval[K, V]
	for s.count-s.pendingComputing > s.cfg.maxSize {
		e := s.recencyHead
		if e == nil {
			break
		}
		k, hasKey := e.key.get()
		var v V
		hasValue := false
		if vr := e.val.Load(); vr != nil {
			v, hasValue = vr.get()
		}
		s.unlinkLocked(e)
		out = append(out, queuedRemoval[K, V]{key: k, value: v, hasKey: hasKey, hasValue: hasValue, cause: RemovalSize})
	}
	return out
}

// enforceLimitsLocked is the write-path call: cleanup already ran at
// the top of put/replace, but a write can itself push the segment over
// its threshold, so re-check size only (cheap) without re-running the
// full sweep.
func (s *segment[K, V]) enforceLimitsLocked() {
	s.queued = append(s.queued, s.evictToSizeLocked()...)
}

func (s *segment[K, V]) fireRemoval(key K, hasKey bool, value V, hasValue bool, cause RemovalCause) {
	dispatchRemoval(s.cfg.onRemoval, s.cfg.logger, RemovalNotification[K, V]{
		Key: key, Value: value, HasKey: hasKey, HasValue: hasValue, Cause: cause,
	})
	if cause.WasEvicted() && s.cfg.stats != nil {
		s.cfg.stats.evictions.Add(1)
	}
}
