//go:build purego

package sqlitedb

// Pure Go build: CGO_ENABLED=0 go build -tags purego ./...
// modernc.org/sqlite ships FTS3/FTS4 with matchinfo, so the indexes and the
// ranking function behave the same as under the cgo driver.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered for this build.
	DriverName = "sqlite"

	// BuildMode describes the current build configuration.
	BuildMode = "purego"
)
