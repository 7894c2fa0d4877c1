// Package storage gives read-only access to Zotero's attachment storage
// directory, laid out as <root>/<attachmentKey>/<filename>.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/zotindex/internal/apperr"
)

// Attachments resolves attachment files under a storage root.
type Attachments struct {
	root string // absolute path to the storage directory
}

// NewAttachments creates a store rooted at root. The directory does not have
// to exist yet; lookups simply report apperr.ErrNotFound until it does.
func NewAttachments(root string) (*Attachments, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return &Attachments{root: abs}, nil
}

// Root returns the absolute storage directory.
func (a *Attachments) Root() string {
	return a.root
}

// safePath resolves a relative path against the root and rejects any
// result that escapes it.
func (a *Attachments) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(a.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, a.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes storage root: %s", rel)
	}
	return abs, nil
}

// Resolve returns the absolute path of an existing attachment file given
// either its stored path or its key and file name.
func (a *Attachments) Resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return "", fmt.Errorf("storage: %s: %w", path, err)
		}
		path = rel
	}
	abs, err := a.safePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: %s: %w", path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("storage: %s is a directory: %w", path, apperr.ErrNotFound)
	}
	return abs, nil
}

// Open opens the attachment file name stored under key.
func (a *Attachments) Open(key, name string) (*os.File, error) {
	abs, err := a.Resolve(filepath.Join(key, name))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", abs, err)
	}
	return f, nil
}
