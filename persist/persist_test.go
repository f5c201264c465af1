// persist_test.go: SQLite round-trip of a cache's configuration and
// visible entries
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package persist

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/agilira/segcache"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "segcache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	src, err := segcache.NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer src.Close()

	src.Put("a", 1)
	src.Put("b", 2)
	src.Put("c", 3)

	keyCodec := JSONCodec[string]{}
	valCodec := JSONCodec[int]{}

	if err := Save(db, "entries", src, keyCodec, valCodec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst, err := Load(db, "entries", segcache.NewBuilder[string, int](), keyCodec, valCodec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer dst.Close()

	if dst.Size() != 3 {
		t.Fatalf("expected 3 entries after Load, got %d", dst.Size())
	}
	for k, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		if v, ok := dst.Get(k); !ok || v != want {
			t.Errorf("dst.Get(%q) = %v, %v; want %v, true", k, v, ok, want)
		}
	}
}

func TestSaveLoad_RoundTripsConfiguration(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "segcache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	src, err := segcache.NewBuilder[string, int]().
		MaximumSize(500).
		ExpireAfterWrite(90 * time.Second).
		ConcurrencyLevel(8).
		Name("restored").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer src.Close()

	keyCodec, valCodec := JSONCodec[string]{}, JSONCodec[int]{}
	if err := Save(db, "entries", src, keyCodec, valCodec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst, err := Load(db, "entries", segcache.NewBuilder[string, int](), keyCodec, valCodec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer dst.Close()

	configured, ok := dst.(segcache.Configured)
	if !ok {
		t.Fatal("loaded cache does not implement Configured")
	}
	cfg := configured.Config()
	if cfg.MaximumSize != 500 {
		t.Errorf("MaximumSize = %d, want 500", cfg.MaximumSize)
	}
	if cfg.WriteTTL != 90*time.Second {
		t.Errorf("WriteTTL = %v, want 90s", cfg.WriteTTL)
	}
	if cfg.ConcurrencyLevel != 8 {
		t.Errorf("ConcurrencyLevel = %d, want 8", cfg.ConcurrencyLevel)
	}
	if cfg.Name != "restored" {
		t.Errorf("Name = %q, want %q", cfg.Name, "restored")
	}
}

func TestSave_OverwritesPreviousContents(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "segcache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	keyCodec := JSONCodec[string]{}
	valCodec := JSONCodec[int]{}

	first, err := segcache.NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	first.Put("stale", 1)
	if err := Save(db, "entries", first, keyCodec, valCodec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first.Close()

	second, err := segcache.NewBuilder[string, int]().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second.Put("fresh", 2)
	if err := Save(db, "entries", second, keyCodec, valCodec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second.Close()

	dst, err := Load(db, "entries", segcache.NewBuilder[string, int](), keyCodec, valCodec)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer dst.Close()

	if _, ok := dst.Get("stale"); ok {
		t.Error("expected the previous Save's contents to be replaced, not merged")
	}
	if v, ok := dst.Get("fresh"); !ok || v != 2 {
		t.Errorf("expected fresh=2 after the second Save, got %v, %v", v, ok)
	}
}

func TestLoad_MissingTablesBuildFromBuilderAsGiven(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "segcache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	c, err := Load(db, "never_created", segcache.NewBuilder[string, int](), JSONCodec[string]{}, JSONCodec[int]{})
	if err != nil {
		t.Fatalf("Load against nonexistent tables should be a no-op, got: %v", err)
	}
	defer c.Close()
	if c.Size() != 0 {
		t.Errorf("expected no entries loaded, got %d", c.Size())
	}
}

func TestLoad_SkipsUndecodableRows(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "segcache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := ensureEntriesTable(db, "entries"); err != nil {
		t.Fatalf("ensureEntriesTable: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO "entries" (key, value) VALUES (?, ?)`, []byte(`"ok"`), []byte(`not-json`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO "entries" (key, value) VALUES (?, ?)`, []byte(`"good"`), []byte(`7`)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c, err := Load(db, "entries", segcache.NewBuilder[string, int](), JSONCodec[string]{}, JSONCodec[int]{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer c.Close()
	if c.Size() != 1 {
		t.Fatalf("expected only the decodable row to load, got size %d", c.Size())
	}
	if v, ok := c.Get("good"); !ok || v != 7 {
		t.Errorf("expected good=7, got %v, %v", v, ok)
	}

	var keys []string
	c.ForEach(func(k string, v int) bool { keys = append(keys, k); return true })
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "good" {
		t.Errorf("expected only 'good' to survive, got %v", keys)
	}
}
