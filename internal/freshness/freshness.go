// Package freshness decides whether the mirror and the item cache are
// current with the external Zotero database, and which stage is stale.
package freshness

import (
	"errors"
	"io/fs"
	"log/slog"
	"time"
)

// Slack is the tolerated gap between the mirror copy and the cache rebuild
// that followed it.
const Slack = 10 * time.Second

// Stage names the pipeline step that must be rebuilt first.
type Stage string

const (
	StageNone   Stage = ""
	StageMirror Stage = "mirror"
	StageCache  Stage = "cache"
)

// Status is the result of a freshness check.
type Status struct {
	Fresh bool  `json:"fresh"`
	Stage Stage `json:"stage,omitempty"`
}

// Mirror reports the modification times of the source and its mirror.
type Mirror interface {
	SourceModTime() (time.Time, error)
	ModTime() (time.Time, error)
}

// Cache reports when the item cache was last written.
type Cache interface {
	Updated() (time.Time, error)
}

// Checker compares the three timestamps.
type Checker struct {
	mirror Mirror
	cache  Cache
	logger *slog.Logger
}

// New returns a Checker.
func New(mirror Mirror, cache Cache, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{mirror: mirror, cache: cache, logger: logger}
}

// Check reports whether everything is fresh. A source newer than the mirror
// (or no mirror at all) is stale at StageMirror. A cache that was never
// written, or whose last write is more than Slack after the mirror's
// modification time, is stale at StageCache.
func (c *Checker) Check() (Status, error) {
	src, err := c.mirror.SourceModTime()
	if err != nil {
		return Status{}, err
	}

	mir, err := c.mirror.ModTime()
	if errors.Is(err, fs.ErrNotExist) {
		return c.stale(StageMirror), nil
	}
	if err != nil {
		return Status{}, err
	}

	cached, err := c.cache.Updated()
	if err != nil {
		return Status{}, err
	}

	return c.compare(src, mir, cached), nil
}

func (c *Checker) compare(src, mir, cached time.Time) Status {
	switch {
	case src.After(mir):
		return c.stale(StageMirror)
	case cached.IsZero():
		return c.stale(StageCache)
	case cached.Sub(mir) > Slack:
		return c.stale(StageCache)
	}
	return Status{Fresh: true}
}

func (c *Checker) stale(stage Stage) Status {
	c.logger.Debug("freshness: stale", slog.String("stage", string(stage)))
	return Status{Fresh: false, Stage: stage}
}
