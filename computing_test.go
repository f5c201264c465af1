// computing_test.go: GetOrCompute singleflight and panic-isolation semantics
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestComputing_AtMostOneConcurrentComputation(t *testing.T) {
	c, err := NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		close(started)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "k", compute)
			if err != nil {
				t.Errorf("GetOrCompute: %v", err)
				return
			}
			results[i] = v
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 compute invocation, got %d", calls.Load())
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("result[%d] = %d, want 42", i, v)
		}
	}
}

func TestComputing_PutWinsOverInFlightComputation(t *testing.T) {
	c, err := NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan int, 1)
	go func() {
		v, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		if err != nil {
			t.Errorf("GetOrCompute: %v", err)
		}
		done <- v
	}()

	<-started
	c.Put("k", 99)
	close(release)

	got := <-done
	if got != 1 {
		t.Errorf("caller of GetOrCompute should still observe its own computed result 1, got %d", got)
	}

	if v, ok := c.Get("k"); !ok || v != 99 {
		t.Errorf("expected the concurrent Put(99) to win storage, got %v, %v", v, ok)
	}
}

func TestComputing_WaitersObservePutValueAfterDemotion(t *testing.T) {
	c, err := NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	waiting := make(chan struct{})
	waited := make(chan int, 1)
	go func() {
		close(waiting)
		v, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
			t.Error("second caller must wait, never compute")
			return 0, nil
		})
		if err != nil {
			t.Errorf("waiter: %v", err)
		}
		waited <- v
	}()
	<-waiting
	time.Sleep(10 * time.Millisecond)

	// The put wakes the waiter immediately; the in-flight computation
	// is still blocked on release and its eventual result is discarded.
	c.Put("k", 99)

	select {
	case v := <-waited:
		if v != 99 {
			t.Errorf("waiter observed %d, want the put value 99", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter still blocked after Put demoted the computation")
	}
	close(release)
}

func TestComputing_NilResultFailsWithoutStoring(t *testing.T) {
	c, err := NewBuilder[string, *int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	_, err = c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (*int, error) {
		return nil, nil
	})
	if GetErrorCode(err) != ErrCodeComputeNilValue {
		t.Fatalf("expected %s, got %v", ErrCodeComputeNilValue, err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected nothing stored after a nil compute result")
	}

	// The placeholder must be fully torn down: a retry computes again.
	v := 7
	got, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (*int, error) {
		return &v, nil
	})
	if err != nil || got == nil || *got != 7 {
		t.Errorf("expected retry to succeed with 7, got %v, %v", got, err)
	}
}

func TestComputing_WaiterContextCancelled(t *testing.T) {
	c, err := NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetOrCompute(ctx, "k", func(ctx context.Context) (int, error) {
		t.Fatal("waiter should not become an owner; it should observe cancellation instead")
		return 0, nil
	})
	if !IsCancelled(err) {
		t.Errorf("expected cancelled error, got %v", err)
	}

	close(release)
}

func TestComputing_PendingDoesNotCountTowardMaxSizeOrSize(t *testing.T) {
	c, err := NewBuilder[string, int]().MaximumSize(1).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		c.GetOrCompute(context.Background(), "pending", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	if got := c.Size(); got != 0 {
		t.Errorf("expected Size() to ignore an in-flight computation, got %d", got)
	}
	close(release)
	<-done

	// Single segment so "existing" and "pending" are guaranteed to
	// compete for the same per-segment size bound.
	var evicted []string
	c2, err := NewBuilder[string, int]().
		MaximumSize(1).
		ConcurrencyLevel(1).
		RemovalListener(func(n RemovalNotification[string, int]) {
			if n.Cause == RemovalSize {
				evicted = append(evicted, n.Key)
			}
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	c2.Put("existing", 1)

	c2started := make(chan struct{})
	c2release := make(chan struct{})
	c2done := make(chan struct{})
	go func() {
		defer close(c2done)
		c2.GetOrCompute(context.Background(), "pending", func(ctx context.Context) (int, error) {
			close(c2started)
			<-c2release
			return 2, nil
		})
	}()
	<-c2started

	// While "pending" is still being computed, it must not have
	// evicted "existing" to make room for itself: a ComputingEntry
	// does not count toward max-size until it completes.
	if v, ok := c2.Get("existing"); !ok || v != 1 {
		t.Errorf("expected the in-flight computation to not evict the existing entry, got %v, %v (evicted=%v)", v, ok, evicted)
	}

	close(c2release)
	<-c2done
}

func TestComputing_PanicInComputeIsRecovered(t *testing.T) {
	c, err := NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	_, err = c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected an error from a panicking compute function")
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected nothing stored after a panicking compute")
	}
}

func TestComputing_ErrorDoesNotPoisonSubsequentCalls(t *testing.T) {
	c, err := NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	sentinel := errors.New("boom")
	_, err = c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 0, sentinel
	})
	if !IsComputeFailed(err) {
		t.Fatalf("expected compute-failed error, got %v", err)
	}

	v, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Errorf("expected retry to succeed with 7, got %v, %v", v, err)
	}
}
