// Package sqlitedb opens SQLite files with the settings shared by the
// cache, the full-text indexes and the mirror reader.
package sqlitedb

import (
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// fileURI turns path into a SQLite URI filename so that '?', '#' and '%'
// in directory names stay part of the path.
func fileURI(path, query string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("sqlitedb: %s: %w", path, err)
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return (&url.URL{Scheme: "file", Path: abs, RawQuery: query}).String(), nil
}

// Open opens (or creates) a writable database. Every handle is limited to a
// single connection: callers own one lazily reused connection per file.
func Open(path string) (*sql.DB, error) {
	dsn, err := fileURI(path, "")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitedb: %s: %w", pragma, err)
		}
	}
	return db, nil
}

// OpenReadOnly opens an existing database without write access. A truncated
// or missing file surfaces here as a ping error.
func OpenReadOnly(path string) (*sql.DB, error) {
	dsn, err := fileURI(path, "mode=ro")
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitedb: ping %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitedb: busy_timeout: %w", err)
	}
	return db, nil
}
