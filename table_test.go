// table_test.go: hash spreading and segment routing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import "testing"

func TestTable_SegmentCountIsPowerOfTwo(t *testing.T) {
	cfg := segmentConfig[string, int]{
		keyStrength: StrongStrength, valueStrength: StrongStrength,
		maxSize: noMaxSize, writeTTL: noTTL, accessTTL: noTTL,
		ticker: defaultTicker{}, logger: NoOpLogger{},
	}
	for _, want := range []int{1, 2, 4, 8, 16} {
		tb := newTable[string, int](want, 16, cfg)
		if len(tb.segments) != want {
			t.Errorf("requested %d segments, got %d", want, len(tb.segments))
		}
	}
	tb := newTable[string, int](5, 16, cfg)
	if len(tb.segments) != 8 {
		t.Errorf("requested 5 segments, expected rounding up to 8, got %d", len(tb.segments))
	}
}

func TestTable_SegmentForIsStableForSameKey(t *testing.T) {
	cfg := segmentConfig[string, int]{
		keyStrength: StrongStrength, valueStrength: StrongStrength,
		maxSize: noMaxSize, writeTTL: noTTL, accessTTL: noTTL,
		ticker: defaultTicker{}, logger: NoOpLogger{},
	}
	tb := newTable[string, int](8, 16, cfg)

	h := tb.hashKey("consistent-key")
	first := tb.segmentFor(h)
	for i := 0; i < 100; i++ {
		h2 := tb.hashKey("consistent-key")
		if h2 != h {
			t.Fatalf("hashKey not stable across calls: %d != %d", h2, h)
		}
		if tb.segmentFor(h2) != first {
			t.Fatal("segmentFor not stable for the same hash")
		}
	}
}

func TestTable_SpreadDistributesAcrossSegments(t *testing.T) {
	cfg := segmentConfig[int, int]{
		keyStrength: StrongStrength, valueStrength: StrongStrength,
		maxSize: noMaxSize, writeTTL: noTTL, accessTTL: noTTL,
		ticker: defaultTicker{}, logger: NoOpLogger{},
	}
	tb := newTable[int, int](16, 16, cfg)

	hit := make(map[*segment[int, int]]int)
	for i := 0; i < 4096; i++ {
		h := tb.hashKey(i)
		hit[tb.segmentFor(h)]++
	}
	if len(hit) < len(tb.segments)/2 {
		t.Errorf("expected keys spread across most of %d segments, only hit %d", len(tb.segments), len(hit))
	}
}

func TestTable_PutGetRoundTrip(t *testing.T) {
	cfg := segmentConfig[string, int]{
		keyStrength: StrongStrength, valueStrength: StrongStrength,
		keyEq: defaultEquivalence[string](), valEq: defaultEquivalence[int](),
		maxSize: noMaxSize, writeTTL: noTTL, accessTTL: noTTL,
		ticker: defaultTicker{}, logger: NoOpLogger{},
	}
	tb := newTable[string, int](4, 16, cfg)

	tb.put("a", 1)
	if v, ok := tb.get("a"); !ok || v != 1 {
		t.Errorf("get after put = %v, %v; want 1, true", v, ok)
	}
	if tb.size() != 1 {
		t.Errorf("expected size 1, got %d", tb.size())
	}
}
