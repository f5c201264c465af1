// ticker.go: pluggable time source for expiration bookkeeping
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package segcache

import (
	"sync/atomic"

	"github.com/agilira/go-timecache"
)

// Ticker provides the monotonic-ish time source used for access/write
// timestamps and TTL comparisons. Implementations must be safe for
// concurrent use and cheap enough to call on every Get/Put.
type Ticker interface {
	// NowNanos returns the current time in nanoseconds. The only
	// requirement is that it be non-decreasing across calls from the
	// cache's point of view; it need not track wall-clock time.
	NowNanos() int64
}

// defaultTicker is the Ticker used when the builder's Ticker knob is
// left unset. It is backed by go-timecache, which keeps a
// periodically-refreshed cached timestamp to avoid the syscall cost of
// repeated time.Now() calls on the hot path.
type defaultTicker struct{}

func (defaultTicker) NowNanos() int64 {
	return timecache.CachedTimeNano()
}

// fakeTicker is a manually-advanced Ticker for deterministic tests of
// expiration behavior.
type fakeTicker struct {
	nanos atomic.Int64
}

// newFakeTicker returns a fakeTicker starting at the given time.
func newFakeTicker(startNanos int64) *fakeTicker {
	t := &fakeTicker{}
	t.nanos.Store(startNanos)
	return t
}

func (t *fakeTicker) NowNanos() int64 {
	return t.nanos.Load()
}

// Advance moves the fake clock forward by d nanoseconds.
func (t *fakeTicker) Advance(d int64) {
	t.nanos.Add(d)
}
