package zotero

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/zotindex/internal/apperr"
)

// Paths locates the live Zotero database and its attachment storage.
type Paths struct {
	DataDir  string
	Database string
	Storage  string
}

// DefaultDataDir is Zotero's default data directory, ~/Zotero.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Zotero"
	}
	return filepath.Join(home, "Zotero")
}

// ResolvePaths derives the database and storage paths from dataDir. Explicit
// database or storage paths override the derived ones. The database must
// exist.
func ResolvePaths(dataDir, database, storage string) (Paths, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	dataDir = expandHome(dataDir)

	p := Paths{
		DataDir:  dataDir,
		Database: filepath.Join(dataDir, "zotero.sqlite"),
		Storage:  filepath.Join(dataDir, "storage"),
	}
	if database != "" {
		p.Database = expandHome(database)
	}
	if storage != "" {
		p.Storage = expandHome(storage)
	}

	info, err := os.Stat(p.Database)
	if err != nil {
		return Paths{}, fmt.Errorf("zotero: %s: %w: %w", p.Database, apperr.ErrSourceUnavailable, err)
	}
	if info.IsDir() {
		return Paths{}, fmt.Errorf("zotero: %s is a directory: %w", p.Database, apperr.ErrSourceUnavailable)
	}
	return p, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
