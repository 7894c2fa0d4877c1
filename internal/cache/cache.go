// Package cache provides a durable string-keyed store of JSON values backed
// by a single SQLite file, with one shared "last updated" timestamp.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"time"

	"github.com/starford/zotindex/internal/apperr"
	"github.com/starford/zotindex/internal/sqlitedb"
)

// SchemaVersion is the dbinfo.version written by this package.
const SchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dbinfo (
	id           INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	version      INTEGER NOT NULL,
	last_updated REAL DEFAULT 0.0
);

INSERT OR IGNORE INTO dbinfo (id, version, last_updated) VALUES (1, 1, 0.0);

CREATE TABLE IF NOT EXISTS data (
	key   TEXT PRIMARY KEY NOT NULL,
	value TEXT DEFAULT '{}'
);
`

// Cache is a key-value store. All access goes through one connection.
type Cache struct {
	path   string
	conn   *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for the last-updated marker.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// Entry is one key/value pair.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// Decode unmarshals the entry's value into v.
func (e Entry) Decode(v any) error {
	return json.Unmarshal(e.Value, v)
}

// Open opens the cache at path, creating the schema when the file has none.
func Open(path string, opts ...Option) (*Cache, error) {
	c := &Cache{
		path:   path,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := sqlitedb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.conn = conn

	if err := c.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// init creates the schema when the introspection query fails.
func (c *Cache) init() error {
	var version int
	err := c.conn.QueryRow(`SELECT version FROM dbinfo WHERE id = 1`).Scan(&version)
	if err == nil {
		if version > SchemaVersion {
			return fmt.Errorf("cache: %s has version %d, want <= %d: %w", c.path, version, SchemaVersion, apperr.ErrIncompatible)
		}
		c.logger.Debug("cache: opened", slog.String("path", c.path))
		return nil
	}

	c.logger.Debug("cache: initialising", slog.String("path", c.path))
	if _, err := c.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("cache: apply schema: %w", err)
	}
	return nil
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the underlying connection.
func (c *Cache) Close() error {
	return c.conn.Close()
}

// Get decodes the value stored under key into dst. It reports false, leaving
// dst untouched, when the key is absent.
func (c *Cache) Get(key string, dst any) (bool, error) {
	var raw string
	err := c.conn.QueryRow(`SELECT value FROM data WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key. The existing row is updated when present,
// otherwise a new one is inserted; either way the last-updated marker
// advances, even when the stored bytes did not change.
func (c *Cache) Set(key string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("cache: encode %s: %w", key, err)
	}

	tx, err := c.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`UPDATE data SET value = ? WHERE key = ?`, string(data), key)
	if err != nil {
		return false, fmt.Errorf("cache: update %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	op := "updated"
	if n == 0 {
		res, err = tx.Exec(`INSERT INTO data (key, value) VALUES (?, ?)`, key, string(data))
		if err != nil {
			return false, fmt.Errorf("cache: insert %s: %w", key, err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return false, err
		}
		op = "inserted"
	}
	if n == 0 {
		return false, nil
	}

	if err := c.touch(tx); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("cache: commit: %w", err)
	}
	c.logger.Debug("cache: "+op, slog.String("key", key))
	return true, nil
}

// Delete removes key. It reports whether a row was removed.
func (c *Cache) Delete(key string) (bool, error) {
	tx, err := c.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`DELETE FROM data WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("cache: delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := c.touch(tx); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("cache: commit: %w", err)
	}
	c.logger.Debug("cache: deleted", slog.String("key", key))
	return true, nil
}

// Touch advances last_updated without changing any entry. A rebuild that
// wrote nothing still marks the cache as current.
func (c *Cache) Touch() error {
	tx, err := c.conn.Begin()
	if err != nil {
		return fmt.Errorf("cache: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := c.touch(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache: commit: %w", err)
	}
	return nil
}

func (c *Cache) touch(tx *sql.Tx) error {
	t := float64(c.now().UnixNano()) / 1e9
	if _, err := tx.Exec(`UPDATE dbinfo SET last_updated = ? WHERE id = 1`, t); err != nil {
		return fmt.Errorf("cache: set last_updated: %w", err)
	}
	return nil
}

// Updated returns the time of the last successful Set or Delete, or the
// zero time if the cache has never been written.
func (c *Cache) Updated() (time.Time, error) {
	var t float64
	if err := c.conn.QueryRow(`SELECT last_updated FROM dbinfo WHERE id = 1`).Scan(&t); err != nil {
		return time.Time{}, fmt.Errorf("cache: last_updated: %w", err)
	}
	if t == 0 {
		return time.Time{}, nil
	}
	sec, frac := math.Modf(t)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	var n int
	if err := c.conn.QueryRow(`SELECT count(*) FROM data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: count: %w", err)
	}
	return n, nil
}

// Keys yields every key. Each range re-queries the store; other Cache
// methods must not be called from inside the loop.
func (c *Cache) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for e, err := range c.scan(`SELECT key, '' FROM data`) {
			if !yield(e.Key, err) {
				return
			}
		}
	}
}

// Values yields every stored JSON value.
func (c *Cache) Values() iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		for e, err := range c.scan(`SELECT '', value FROM data`) {
			if !yield(e.Value, err) {
				return
			}
		}
	}
}

// Items yields every key/value pair.
func (c *Cache) Items() iter.Seq2[Entry, error] {
	return c.scan(`SELECT key, value FROM data`)
}

func (c *Cache) scan(query string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		rows, err := c.conn.Query(query)
		if err != nil {
			yield(Entry{}, fmt.Errorf("cache: scan: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				yield(Entry{}, fmt.Errorf("cache: scan row: %w", err))
				return
			}
			if !yield(Entry{Key: key, Value: json.RawMessage(value)}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("cache: scan: %w", err))
		}
	}
}
