// Command segcachebench drives a mixed Put/GetOrCompute workload
// against a segcache.Cache and prints the resulting CacheStats.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	flashflags "github.com/agilira/flash-flags"

	"github.com/agilira/segcache"
)

func main() {
	fs := flashflags.New("segcachebench")
	size := fs.Int("size", 100_000, "maximum cache size")
	concurrency := fs.Int("concurrency", 8, "number of worker goroutines")
	ttl := fs.Duration("ttl", 0, "write-expiration TTL (0 disables write TTL)")
	ops := fs.Int("ops", 1_000_000, "total operations across all workers")
	keyspace := fs.Int("keyspace", 50_000, "distinct keys drawn from")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "segcachebench:", err)
		os.Exit(1)
	}

	builder := segcache.NewBuilder[int, int64]().
		MaximumSize(*size).
		ConcurrencyLevel(*concurrency)
	if *ttl > 0 {
		builder = builder.ExpireAfterWrite(*ttl)
	}

	cache, err := builder.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "segcachebench: build:", err)
		os.Exit(1)
	}
	defer cache.Close()

	opsPerWorker := *ops / *concurrency
	var wg sync.WaitGroup
	wg.Add(*concurrency)
	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		go func(seed int64) {
			defer wg.Done()
			runWorker(cache, *keyspace, opsPerWorker, seed)
		}(int64(w))
	}
	wg.Wait()
	elapsed := time.Since(start)

	stats := cache.Stats()
	fmt.Printf("ops=%d workers=%d elapsed=%s throughput=%.0f ops/s\n",
		*ops, *concurrency, elapsed, float64(*ops)/elapsed.Seconds())
	fmt.Printf("hit_rate=%.4f load_success_rate=%.4f evictions=%d avg_load_penalty=%.0fns\n",
		stats.HitRate(), stats.LoadSuccessRate(), stats.EvictionCount, stats.AverageLoadPenaltyNanos())
}

func runWorker(cache segcache.Cache[int, int64], keyspace, ops int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	ctx := context.Background()
	for i := 0; i < ops; i++ {
		key := rng.Intn(keyspace)
		switch rng.Intn(10) {
		case 0, 1:
			cache.Put(key, rng.Int63())
		default:
			_, _ = cache.GetOrCompute(ctx, key, func(context.Context) (int64, error) {
				return int64(key), nil
			})
		}
	}
}
