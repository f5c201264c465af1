// computing.go: at-most-one-concurrent-computation orchestration
//
// Singleflight-style gating, run entirely through the segment-level
// computingEntry placeholder installed by acquireComputing: an entry
// in the bucket chain (rather than a side map keyed by hash) is what a
// segment can cheaply publish back into its own table, and it gives
// concurrent Gets something to find and wait on.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import "context"

// getOrCompute runs compute for at most one goroutine per key at a
// time; every other caller for the same key blocks on the winner's
// outcome. A put for the same key while a computation is in-flight
// always wins over the eventual computed result.
func (t *table[K, V]) getOrCompute(ctx context.Context, key K, stats *cacheStats, compute func(context.Context) (V, error)) (V, error) {
	hash := t.hashKey(key)
	seg := t.segmentFor(hash)

	value, found, ce, owner, e := seg.acquireComputing(key, hash)
	if found {
		stats.recordHit()
		return value, nil
	}

	if !owner {
		select {
		case <-ce.latch:
		case <-ctx.Done():
			var zero V
			return zero, NewErrCancelled(key, ctx.Err())
		}
		if ce.state == computeDone {
			stats.recordHit()
			return ce.value, nil
		}
		// The winner's computation failed: every waiter observes the
		// same stored failure from the one completed flight rather
		// than retrying compute itself, exactly like inflightCall's
		// waiters in loading.go all loading the same errorWrapper.
		stats.recordMiss()
		var zero V
		return zero, ce.err
	}

	stats.recordMiss()
	start := seg.now()
	result, err := runCompute(ctx, compute)
	elapsed := seg.now() - start

	if err != nil {
		werr := NewErrComputeFailed(key, err)
		seg.abandonComputing(e, ce, werr)
		stats.recordLoadFailure(elapsed)
		var zero V
		return zero, werr
	}
	if isNilGeneric(result) {
		// A nil result is "absent": the placeholder is torn down and
		// the failure reported distinctly from a thrown error.
		nerr := NewErrComputeNilValue(key)
		seg.abandonComputing(e, ce, nerr)
		stats.recordLoadFailure(elapsed)
		var zero V
		return zero, nerr
	}

	seg.publishComputing(e, ce, result)
	stats.recordLoadSuccess(elapsed)
	return result, nil
}

// runCompute invokes compute with panic isolation: a panicking loader
// must fail the computation for every waiter, not crash the goroutine
// that happened to win ownership of it.
func runCompute[V any](ctx context.Context, compute func(context.Context) (V, error)) (result V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			result = zero
			err = NewErrPanicRecovered("GetOrCompute", r)
		}
	}()
	return compute(ctx)
}
