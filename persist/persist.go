// Package persist round-trips a segcache.Cache's configuration and
// visible entries through a SQLite database via database/sql and
// mattn/go-sqlite3.
//
// Save writes two tables per logical cache: one row of configuration
// (maximum size, TTLs, concurrency level, key/value strength) taken
// from the cache's Configured.Config(), and one row per currently
// visible key/value pair. Only currently-visible pairs are persisted —
// not the recency or write-order lists, and not any in-flight
// computation — per the cache's own "weakly consistent snapshot"
// contract for ForEach.
//
// Load reverses this: it reads the configuration row and applies it to
// the supplied CacheBuilder before calling Build, then replays the
// entry rows through the freshly built cache's ordinary Put path, so
// whatever size/TTL policy was restored applies exactly as it would to
// any other write. A database with no configuration row (or an older
// one written by a version of this package that only stored entries)
// builds from whatever the caller's CacheBuilder already specifies.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package persist

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agilira/segcache"
)

// Codec converts a key or value to and from a storable byte slice.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// JSONCodec is a Codec backed by encoding/json. It is the default
// choice for any type whose fields are exported and JSON-marshalable.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// Open opens a SQLite database at path using the mattn/go-sqlite3
// driver registered under "sqlite3".
func Open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path)
}

// configRow is the JSON-serializable mirror of segcache.CacheConfig.
// Durations round-trip as int64 nanoseconds so the stored row never
// depends on the time.Duration string representation.
type configRow struct {
	Name             string `json:"name"`
	InitialCapacity  int    `json:"initial_capacity"`
	ConcurrencyLevel int    `json:"concurrency_level"`
	MaximumSize      int    `json:"maximum_size"`
	KeyStrength      int    `json:"key_strength"`
	ValueStrength    int    `json:"value_strength"`
	WriteTTLNanos    int64  `json:"write_ttl_nanos"`
	AccessTTLNanos   int64  `json:"access_ttl_nanos"`
	CleanupNanos     int64  `json:"cleanup_interval_nanos"`
}

func toConfigRow(c segcache.CacheConfig) configRow {
	return configRow{
		Name:             c.Name,
		InitialCapacity:  c.InitialCapacity,
		ConcurrencyLevel: c.ConcurrencyLevel,
		MaximumSize:      c.MaximumSize,
		KeyStrength:      int(c.KeyStrength),
		ValueStrength:    int(c.ValueStrength),
		WriteTTLNanos:    int64(c.WriteTTL),
		AccessTTLNanos:   int64(c.AccessTTL),
		CleanupNanos:     int64(c.CleanupInterval),
	}
}

// Save replaces the entries table's contents with every entry
// currently visible in c, encoded with keyCodec/valCodec, and writes
// c's configuration (when c implements segcache.Configured, true for
// every Cache a CacheBuilder produces) into the accompanying config
// table. Both tables are created if they do not already exist.
func Save[K comparable, V any](db *sql.DB, table string, c segcache.Cache[K, V], keyCodec Codec[K], valCodec Codec[V]) error {
	if err := ensureEntriesTable(db, table); err != nil {
		return err
	}
	if err := ensureConfigTable(db, table); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if configured, ok := c.(segcache.Configured); ok {
		row := toConfigRow(configured.Config())
		blob, err := json.Marshal(row)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf(
			"INSERT INTO %s (id, config) VALUES (0, ?) ON CONFLICT(id) DO UPDATE SET config = excluded.config",
			quoteIdent(configTable(table))), blob); err != nil {
			tx.Rollback()
			return err
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", quoteIdent(table))); err != nil {
		tx.Rollback()
		return err
	}

	insert, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?)", quoteIdent(table)))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer insert.Close()

	var encodeErr error
	c.ForEach(func(k K, v V) bool {
		kb, err := keyCodec.Encode(k)
		if err != nil {
			encodeErr = err
			return false
		}
		vb, err := valCodec.Encode(v)
		if err != nil {
			encodeErr = err
			return false
		}
		if _, err := insert.Exec(kb, vb); err != nil {
			encodeErr = err
			return false
		}
		return true
	})
	if encodeErr != nil {
		tx.Rollback()
		return encodeErr
	}

	return tx.Commit()
}

// Load reconstructs a Cache[K, V] from table's rows. If a config row
// was previously saved, its knobs (maximum size, write/access TTL,
// concurrency level, initial capacity, key/value strength, name,
// cleanup interval) are applied to b before Build is called. A knob b
// was already given is then set a second time, so Build, and with it
// Load, fails with an invalid-state error; Name is the exception, and
// the saved name replaces b's. Build then runs, and every entry row is
// replayed through the resulting cache's Put.
// Rows that fail to decode are skipped rather than aborting the whole
// load.
func Load[K comparable, V any](db *sql.DB, table string, b *segcache.CacheBuilder[K, V], keyCodec Codec[K], valCodec Codec[V]) (segcache.Cache[K, V], error) {
	hasCfg, row, err := loadConfigRow(db, table)
	if err != nil {
		return nil, err
	}
	if hasCfg {
		applyConfigRow(b, row)
	}

	c, err := b.Build()
	if err != nil {
		return nil, err
	}

	exists, err := tableExists(db, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return c, nil
	}

	rows, err := db.Query(fmt.Sprintf("SELECT key, value FROM %s", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var kb, vb []byte
		if err := rows.Scan(&kb, &vb); err != nil {
			return nil, err
		}
		k, err := keyCodec.Decode(kb)
		if err != nil {
			continue
		}
		v, err := valCodec.Decode(vb)
		if err != nil {
			continue
		}
		c.Put(k, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyConfigRow replays a saved configRow onto b, one setter per
// knob that was actually recorded as set (sentinel values are left
// alone so the builder's own defaults apply).
func applyConfigRow[K comparable, V any](b *segcache.CacheBuilder[K, V], row configRow) {
	if row.Name != "" {
		b.Name(row.Name)
	}
	if row.InitialCapacity > 0 {
		b.InitialCapacity(row.InitialCapacity)
	}
	if row.ConcurrencyLevel > 0 {
		b.ConcurrencyLevel(row.ConcurrencyLevel)
	}
	if row.MaximumSize != segcache.NoMaxSize {
		b.MaximumSize(row.MaximumSize)
	}
	if segcache.Strength(row.KeyStrength) == segcache.SoftStrength {
		b.SoftKeys()
	} else if segcache.Strength(row.KeyStrength) == segcache.WeakStrength {
		b.WeakKeys()
	}
	if segcache.Strength(row.ValueStrength) == segcache.SoftStrength {
		b.SoftValues()
	} else if segcache.Strength(row.ValueStrength) == segcache.WeakStrength {
		b.WeakValues()
	}
	if row.WriteTTLNanos != int64(segcache.NoTTL) {
		b.ExpireAfterWrite(nanosToDuration(row.WriteTTLNanos))
	}
	if row.AccessTTLNanos != int64(segcache.NoTTL) {
		b.ExpireAfterAccess(nanosToDuration(row.AccessTTLNanos))
	}
	if row.CleanupNanos > 0 {
		b.CleanupInterval(nanosToDuration(row.CleanupNanos))
	}
}

func loadConfigRow(db *sql.DB, table string) (bool, configRow, error) {
	exists, err := tableExists(db, configTable(table))
	if err != nil || !exists {
		return false, configRow{}, err
	}

	row := db.QueryRow(fmt.Sprintf("SELECT config FROM %s WHERE id = 0", quoteIdent(configTable(table))))
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return false, configRow{}, nil
		}
		return false, configRow{}, err
	}

	var cfg configRow
	if err := json.Unmarshal(blob, &cfg); err != nil {
		return false, configRow{}, err
	}
	return true, cfg, nil
}

func ensureEntriesTable(db *sql.DB, table string) error {
	_, err := db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (key BLOB PRIMARY KEY, value BLOB NOT NULL)",
		quoteIdent(table)))
	return err
}

func ensureConfigTable(db *sql.DB, table string) error {
	_, err := db.Exec(fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY CHECK (id = 0), config BLOB NOT NULL)",
		quoteIdent(configTable(table))))
	return err
}

func configTable(table string) string {
	return table + "_config"
}

func tableExists(db *sql.DB, table string) (bool, error) {
	row := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
	var name string
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// quoteIdent wraps an identifier in double quotes for safe
// interpolation into a statement string; table names cannot be bound
// as query parameters in database/sql.
func quoteIdent(ident string) string {
	return `"` + ident + `"`
}

func nanosToDuration(n int64) time.Duration {
	return time.Duration(n)
}
