// entry.go: hash-table node
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import (
	"sync"
	"sync/atomic"
)

// computeState describes where a computingEntry is in its lifecycle.
type computeState int32

const (
	computePending computeState = iota
	computeDone
	computeFailed
)

// entry is a single node in a segment's bucket chain. It is linked
// into the bucket array via next, and intrusively into the segment's
// recency and write-order lists via the prev/next pairs below,
// avoiding a second, boxed container/list.Element allocation per
// ordering list.
//
// next, val, and computing are published via atomic.Pointer so that
// Get can walk a bucket chain and read the current value without
// acquiring the segment lock; key is fixed at construction time,
// before the entry is ever published into a bucket array, so it needs
// no synchronization of its own.
type entry[K comparable, V any] struct {
	hash uint64
	key  ref[K]
	val  atomic.Pointer[ref[V]]

	next atomic.Pointer[entry[K, V]] // next entry in this bucket's chain

	prevAccess, nextAccess *entry[K, V] // recency list (LRU / access-TTL)
	prevWrite, nextWrite   *entry[K, V] // write-order list (write-TTL)

	accessNanos int64
	writeNanos  int64

	inRecency bool // linked into the recency list
	inWrite   bool // linked into the write list

	computing atomic.Pointer[computingEntry[K, V]] // non-nil while a computation is pending for this key
}

// computingEntry is the placeholder installed by GetOrCompute while a
// user function runs outside the segment lock. It is reachable from
// the hash array (via entry.computing) but invisible to every query
// except Get/GetOrCompute, which wait on latch.
type computingEntry[K comparable, V any] struct {
	latch chan struct{} // closed exactly once, when the outcome is settled
	once  sync.Once

	state computeState
	value V
	err   error
}

func newComputingEntry[K comparable, V any]() *computingEntry[K, V] {
	return &computingEntry[K, V]{latch: make(chan struct{})}
}

// settle records the outcome and broadcasts it to every waiter. Only
// the first call takes effect: an external put that demoted the
// placeholder settles it with the put value before the losing
// computation finishes and tries to settle it again with the result
// being discarded.
func (c *computingEntry[K, V]) settle(value V, err error) {
	c.once.Do(func() {
		c.value = value
		c.err = err
		if err != nil {
			c.state = computeFailed
		} else {
			c.state = computeDone
		}
		close(c.latch)
	})
}
