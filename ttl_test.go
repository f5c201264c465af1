// ttl_test.go: time- and size-based expiration behavior
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import (
	"testing"
	"time"
)

func TestTTL_ExpireAfterWrite(t *testing.T) {
	ft := newFakeTicker(0)
	var causes []RemovalCause
	c, err := NewBuilder[string, int]().
		ExpireAfterWrite(time.Minute).
		Ticker(ft).
		RemovalListener(func(n RemovalNotification[string, int]) {
			causes = append(causes, n.Cause)
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	c.Put("k", 1)
	if v, ok := c.Get("k"); !ok || v != 1 {
		t.Fatalf("Get before expiry: %v, %v", v, ok)
	}

	ft.Advance(int64(time.Minute) + 1)
	impl := c.(*cache[string, int])
	impl.table.runCleanupAll()

	if _, ok := c.Get("k"); ok {
		t.Error("expected entry expired by write TTL")
	}
	if len(causes) != 1 || causes[0] != RemovalExpired {
		t.Errorf("expected one EXPIRED notification, got %v", causes)
	}
}

func TestTTL_ExpireAfterAccessRefreshedByGet(t *testing.T) {
	ft := newFakeTicker(0)
	c, err := NewBuilder[string, int]().
		ExpireAfterAccess(time.Minute).
		Ticker(ft).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	c.Put("k", 1)

	ft.Advance(int64(30 * time.Second))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before access TTL elapses")
	}

	ft.Advance(int64(30 * time.Second))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected access at t=60s to refresh the access TTL from t=30s, not t=0")
	}

	ft.Advance(int64(61 * time.Second))
	impl := c.(*cache[string, int])
	impl.table.runCleanupAll()
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry expired after access TTL elapsed with no further reads")
	}
}

func TestTTL_ExpiredEntryOverSizeBoundIsRemoved(t *testing.T) {
	ft := newFakeTicker(0)
	var causes []RemovalCause
	c, err := NewBuilder[string, int]().
		MaximumSize(1).
		ConcurrencyLevel(1).
		ExpireAfterWrite(time.Minute).
		Ticker(ft).
		RemovalListener(func(n RemovalNotification[string, int]) {
			causes = append(causes, n.Cause)
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	c.Put("a", 1)
	ft.Advance(int64(time.Minute) + 1)
	// "a" is now both write-expired and, once "b" is inserted, over the
	// size limit. The cleanup pass evaluates SIZE eviction only after
	// expiry already removed what it will remove; here expiry fires
	// first since it only takes one pass to observe.
	c.Put("b", 2)

	if len(causes) == 0 {
		t.Fatal("expected at least one removal notification")
	}
	last := causes[len(causes)-1]
	if last != RemovalExpired && last != RemovalSize {
		t.Errorf("expected EXPIRED or SIZE cause, got %v", last)
	}
}

func TestTTL_LegacyExpireAfterAliasesWriteTTL(t *testing.T) {
	ft := newFakeTicker(0)
	c, err := NewBuilder[string, int]().
		ExpireAfter(time.Minute).
		Ticker(ft).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	c.Put("k", 1)
	ft.Advance(int64(time.Minute) + 1)
	impl := c.(*cache[string, int])
	impl.table.runCleanupAll()
	if _, ok := c.Get("k"); ok {
		t.Error("expected ExpireAfter to behave as ExpireAfterWrite")
	}
}
