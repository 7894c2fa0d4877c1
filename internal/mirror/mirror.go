// Package mirror keeps a byte-for-byte local copy of the Zotero database so
// that reads never contend with the running Zotero application.
package mirror

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/zotindex/internal/apperr"
)

// Manager owns the mirror file's lifecycle.
type Manager struct {
	source string
	path   string
	logger *slog.Logger
}

// New returns a Manager copying source to path.
func New(source, path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{source: source, path: path, logger: logger}
}

// Source returns the path of the external database.
func (m *Manager) Source() string {
	return m.source
}

// Path returns the mirror path without touching the file system.
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether the mirror file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Ensure creates the mirror if it does not exist yet and returns its path.
func (m *Manager) Ensure() (string, error) {
	if m.Exists() {
		return m.path, nil
	}
	if err := m.Refresh(); err != nil {
		return "", err
	}
	m.logger.Info("mirror: created", slog.String("path", m.path))
	return m.path, nil
}

// Refresh replaces the mirror with a fresh copy of the source. The copy is
// written to a temp file, fsynced and renamed into place.
func (m *Manager) Refresh() error {
	start := time.Now()

	src, err := os.Open(m.source)
	if err != nil {
		return fmt.Errorf("mirror: open source %s: %w: %w", m.source, apperr.ErrSourceUnavailable, err)
	}
	defer src.Close()

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mirror: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".zotindex-mirror-*")
	if err != nil {
		return fmt.Errorf("mirror: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, src)
	if err != nil {
		return fmt.Errorf("mirror: copy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("mirror: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("mirror: close temp: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return fmt.Errorf("mirror: rename: %w", err)
	}
	success = true

	m.logger.Info("mirror: refreshed",
		slog.String("path", m.path),
		slog.Int64("bytes", n),
		slog.Duration("took", time.Since(start)))
	return nil
}

// ModTime returns the mirror's modification time, which stands in for the
// instant the copy was taken. It returns fs.ErrNotExist when there is no mirror.
func (m *Manager) ModTime() (time.Time, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("mirror: stat: %w", err)
	}
	return info.ModTime(), nil
}

// SourceModTime returns the external database's modification time.
func (m *Manager) SourceModTime() (time.Time, error) {
	info, err := os.Stat(m.source)
	if err != nil {
		return time.Time{}, fmt.Errorf("mirror: stat source %s: %w: %w", m.source, apperr.ErrSourceUnavailable, err)
	}
	return info.ModTime(), nil
}

// Remove deletes the mirror. A missing mirror is not an error.
func (m *Manager) Remove() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("mirror: remove: %w", err)
	}
	return nil
}
