// Package configwatch hot-reloads a segcache.Cache's TTL configuration
// from a file, using argus to watch it.
//
// argus.UniversalConfigWatcherWithConfig drives a callback whenever
// the watched file changes; parsing helpers pull typed values out of
// the loosely-typed map argus hands back. A segment's TTLs are fixed
// at construction (there is no live-mutation hook), so this package
// rebuilds a fresh Cache from the new CacheConfig and atomically swaps
// it in. MaximumSize and reference-strength knobs are excluded from
// reload: both require a fresh table layout rather than a timestamp
// comparison change.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package configwatch

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/segcache"
)

// CacheConfig holds the subset of CacheBuilder knobs that are safe to
// change at runtime: both TTLs. MaximumSize, WeakKeys/SoftKeys, and
// WeakValues/SoftValues are deliberately absent — changing any of them
// changes the table's layout, not just a timestamp comparison.
type CacheConfig struct {
	WriteTTL  time.Duration
	AccessTTL time.Duration
}

// Rebuilder constructs a Cache from a CacheConfig. Callers close over
// whatever knobs must stay fixed across reloads (max size, strength,
// removal listener) and apply only cfg's TTLs.
type Rebuilder[K comparable, V any] func(CacheConfig) (segcache.Cache[K, V], error)

// Watcher rebuilds and atomically swaps the active Cache whenever the
// watched configuration file changes.
type Watcher[K comparable, V any] struct {
	rebuild Rebuilder[K, V]
	active  atomic.Pointer[segcache.Cache[K, V]]
	watcher *argus.Watcher

	// OnReload, if set, is called after a successful reload with the
	// previous and new configuration. It must be fast and non-blocking.
	OnReload func(old, new CacheConfig)

	cfg atomic.Pointer[CacheConfig]
}

// Options configures a Watcher.
type Options struct {
	// ConfigPath is the file argus watches. Supports JSON, YAML, TOML,
	// HCL, INI, and Properties, per argus's own format detection.
	ConfigPath string

	// PollInterval is how often argus checks the file for changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration
}

// New builds the initial cache from initial, starts watching
// opts.ConfigPath for changes, and returns the Watcher.
func New[K comparable, V any](opts Options, initial CacheConfig, rebuild Rebuilder[K, V]) (*Watcher[K, V], error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("configwatch: config_path is required")
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	c, err := rebuild(initial)
	if err != nil {
		return nil, err
	}

	w := &Watcher[K, V]{rebuild: rebuild}
	w.active.Store(&c)
	w.cfg.Store(&initial)

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, w.handleChange, argus.Config{
		PollInterval: opts.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	w.watcher = watcher
	return w, nil
}

// Start begins watching, if not already running.
func (w *Watcher[K, V]) Start() error {
	if w.watcher.IsRunning() {
		return nil
	}
	return w.watcher.Start()
}

// Stop stops watching the configuration file. The active cache is left
// running; callers should Close() it separately via Current().
func (w *Watcher[K, V]) Stop() error {
	return w.watcher.Stop()
}

// Current returns the presently active Cache.
func (w *Watcher[K, V]) Current() segcache.Cache[K, V] {
	return *w.active.Load()
}

// CurrentConfig returns the CacheConfig in effect.
func (w *Watcher[K, V]) CurrentConfig() CacheConfig {
	return *w.cfg.Load()
}

func (w *Watcher[K, V]) handleChange(data map[string]interface{}) {
	old := *w.cfg.Load()
	next := parseConfig(data, old)

	fresh, err := w.rebuild(next)
	if err != nil {
		return
	}

	prev := w.active.Swap(&fresh)
	w.cfg.Store(&next)

	if prev != nil {
		_ = (*prev).Close()
	}
	if w.OnReload != nil {
		w.OnReload(old, next)
	}
}

func parseConfig(data map[string]interface{}, fallback CacheConfig) CacheConfig {
	cfg := fallback

	section, ok := data["cache"].(map[string]interface{})
	if !ok {
		if _, hasWriteTTL := data["write_ttl"]; hasWriteTTL {
			section = data
		} else {
			return cfg
		}
	}

	if d, ok := parseDuration(section["write_ttl"]); ok {
		cfg.WriteTTL = d
	}
	if d, ok := parseDuration(section["access_ttl"]); ok {
		cfg.AccessTTL = d
	}
	return cfg
}

func parseDuration(value interface{}) (time.Duration, bool) {
	str, ok := value.(string)
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, false
	}
	return d, true
}
