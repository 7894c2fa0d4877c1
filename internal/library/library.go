// Package library ties the mirror, cache, freshness checker, extractor and
// full-text indexes together into one object that callers sync and query.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/starford/zotindex/internal/apperr"
	"github.com/starford/zotindex/internal/cache"
	"github.com/starford/zotindex/internal/checksum"
	"github.com/starford/zotindex/internal/freshness"
	"github.com/starford/zotindex/internal/fts"
	"github.com/starford/zotindex/internal/htmltext"
	"github.com/starford/zotindex/internal/mirror"
	"github.com/starford/zotindex/internal/models"
	"github.com/starford/zotindex/internal/sqlitedb"
	"github.com/starford/zotindex/internal/storage"
	"github.com/starford/zotindex/internal/zotero"
)

// File names inside Config.DataDir.
const (
	MirrorFile      = "zotero.sqlite3"
	CacheFile       = "entries-cache.sqlite3"
	IndexFile       = "search.sqlite3"
	FoldedIndexFile = "search-ascii.sqlite3"
)

// Config describes where the library reads from and writes to.
type Config struct {
	// Source is the live Zotero database.
	Source string
	// StorageRoot is Zotero's attachment storage directory.
	StorageRoot string
	// DataDir holds the mirror, the cache and both indexes.
	DataDir string

	ExcludedTypeIDs    []int
	AttachmentPrefixes []string
	AttachmentExts     []string
	PersonalOnly       bool

	// Schema defaults to fts.DefaultSchema.
	Schema fts.Schema
	// Stripper defaults to htmltext.Tokenizer.
	Stripper htmltext.Stripper
}

// Report summarises one Sync.
type Report struct {
	ID              string          `json:"id"`
	Stage           freshness.Stage `json:"stage"`
	MirrorRefreshed bool            `json:"mirror_refreshed"`
	CacheRebuilt    bool            `json:"cache_rebuilt"`
	Items           int             `json:"items"`
	Added           int             `json:"added"`
	Changed         int             `json:"changed"`
	Removed         int             `json:"removed"`
	Indexed         int             `json:"indexed"`
	Took            time.Duration   `json:"took"`
}

// Stats describes the current state of the derived files.
type Stats struct {
	Status        freshness.Status `json:"status"`
	Items         int              `json:"items"`
	Indexed       int              `json:"indexed"`
	FoldedIndexed int              `json:"folded_indexed"`
	SourceModTime time.Time        `json:"source_mod_time"`
	MirrorModTime time.Time        `json:"mirror_mod_time"`
	CacheUpdated  time.Time        `json:"cache_updated"`
}

// Result is a search hit joined with its cached item.
type Result struct {
	fts.Hit
	Item models.Item `json:"item"`
}

// Library is the explicit context object for one Zotero library. All
// methods are safe for concurrent use; they are serialised internally.
type Library struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	mirror      *mirror.Manager
	attachments *storage.Attachments
	cache       *cache.Cache
	checker     *freshness.Checker
	plain       *fts.Index
	folded      *fts.Index
}

// Open prepares the data directory and opens the cache and both indexes.
// It does not copy or extract anything; call EnsureBuilt or Sync for that.
func Open(cfg Config, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Source == "" {
		return nil, fmt.Errorf("library: source database not set")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("library: data dir not set")
	}
	if cfg.Schema.Table == "" {
		cfg.Schema = fts.DefaultSchema()
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("library: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("library: mkdir %s: %w", cfg.DataDir, err)
	}

	att, err := storage.NewAttachments(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("library: %w", err)
	}

	l := &Library{
		cfg:         cfg,
		logger:      logger,
		mirror:      mirror.New(cfg.Source, filepath.Join(cfg.DataDir, MirrorFile), logger),
		attachments: att,
	}
	if err := l.openDerived(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) openDerived() error {
	c, err := cache.Open(filepath.Join(l.cfg.DataDir, CacheFile), cache.WithLogger(l.logger))
	if err != nil {
		return fmt.Errorf("library: %w", err)
	}
	plain, err := fts.Open(filepath.Join(l.cfg.DataDir, IndexFile), l.cfg.Schema, false, l.logger)
	if err != nil {
		c.Close()
		return fmt.Errorf("library: %w", err)
	}
	folded, err := fts.Open(filepath.Join(l.cfg.DataDir, FoldedIndexFile), l.cfg.Schema, true, l.logger)
	if err != nil {
		c.Close()
		plain.Close()
		return fmt.Errorf("library: %w", err)
	}
	l.cache, l.plain, l.folded = c, plain, folded
	l.checker = freshness.New(l.mirror, c, l.logger)
	return nil
}

func (l *Library) closeDerived() error {
	return errors.Join(l.cache.Close(), l.plain.Close(), l.folded.Close())
}

// Close closes the cache and both indexes.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeDerived()
}

// Attachments returns the attachment store.
func (l *Library) Attachments() *storage.Attachments {
	return l.attachments
}

// IsFresh reports whether the mirror and cache are current.
func (l *Library) IsFresh() (freshness.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checker.Check()
}

// Sync brings everything up to date. When the freshness check reports a
// stale stage (or force is set) the mirror is re-copied, the cache is
// rebuilt from it and both indexes are rebuilt from the cache. A fresh
// library is left untouched.
func (l *Library) Sync(force bool) (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	rep := Report{ID: uuid.NewString()}

	st, err := l.checker.Check()
	if err != nil {
		return rep, fmt.Errorf("library: freshness: %w", err)
	}
	if st.Fresh && !force {
		l.logger.Debug("library: fresh, nothing to sync")
		return rep, nil
	}
	rep.Stage = st.Stage
	if force && st.Fresh {
		rep.Stage = freshness.StageMirror
	}

	// The cache heuristic compares against the mirror's mtime, so the
	// mirror is always re-copied right before a cache rebuild.
	if err := l.mirror.Refresh(); err != nil {
		return rep, fmt.Errorf("library: %w", err)
	}
	rep.MirrorRefreshed = true

	if err := l.rebuildCache(&rep); err != nil {
		return rep, err
	}
	if err := l.rebuildIndexes(&rep); err != nil {
		return rep, err
	}

	rep.Took = time.Since(start)
	l.logger.Info("library: synced",
		slog.String("sync_id", rep.ID),
		slog.String("stage", string(rep.Stage)),
		slog.Int("items", rep.Items),
		slog.Int("added", rep.Added),
		slog.Int("changed", rep.Changed),
		slog.Int("removed", rep.Removed),
		slog.Duration("took", rep.Took))
	return rep, nil
}

// EnsureBuilt creates whatever is missing: the mirror, the cache contents
// and the index rows. Existing files are left as they are.
func (l *Library) EnsureBuilt() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.mirror.Ensure(); err != nil {
		return fmt.Errorf("library: %w", err)
	}

	updated, err := l.cache.Updated()
	if err != nil {
		return fmt.Errorf("library: %w", err)
	}
	if updated.IsZero() {
		var rep Report
		if err := l.rebuildCache(&rep); err != nil {
			return err
		}
	}

	for _, ix := range []*fts.Index{l.plain, l.folded} {
		n, err := ix.Count()
		if err != nil {
			return fmt.Errorf("library: %w", err)
		}
		if n > 0 {
			continue
		}
		if _, err := ix.Populate(l.cachedItems()); err != nil {
			return fmt.Errorf("library: populate %s: %w", ix.Path(), err)
		}
	}
	return nil
}

// RebuildCache re-extracts every item from the mirror into the cache.
func (l *Library) RebuildCache() (Report, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rep := Report{ID: uuid.NewString()}
	if _, err := l.mirror.Ensure(); err != nil {
		return rep, fmt.Errorf("library: %w", err)
	}
	err := l.rebuildCache(&rep)
	return rep, err
}

// rebuildCache writes every extracted item with Set and deletes keys that
// are no longer in the library. Caller holds l.mu.
func (l *Library) rebuildCache(rep *Report) error {
	db, err := sqlitedb.OpenReadOnly(l.mirror.Path())
	if err != nil {
		return fmt.Errorf("library: open mirror: %w", err)
	}
	defer db.Close()

	items, err := zotero.NewExtractor(db, zotero.ExtractorOptions{
		StorageRoot:        l.cfg.StorageRoot,
		ExcludedTypeIDs:    l.cfg.ExcludedTypeIDs,
		AttachmentPrefixes: l.cfg.AttachmentPrefixes,
		AttachmentExts:     l.cfg.AttachmentExts,
		PersonalOnly:       l.cfg.PersonalOnly,
		Stripper:           l.cfg.Stripper,
		Logger:             l.logger,
	}).ExtractOrdered()
	if err != nil {
		return fmt.Errorf("library: extract: %w", err)
	}

	previous := make(map[string]string)
	for e, err := range l.cache.Items() {
		if err != nil {
			return fmt.Errorf("library: %w", err)
		}
		sum, err := checksum.SumJSON(e.Value)
		if err != nil {
			return fmt.Errorf("library: %s: %w", e.Key, err)
		}
		previous[e.Key] = sum
	}

	for _, it := range items {
		sum, err := checksum.SumJSON(it)
		if err != nil {
			return fmt.Errorf("library: %s: %w", it.Key, err)
		}
		old, seen := previous[it.Key]
		switch {
		case !seen:
			rep.Added++
		case old != sum:
			rep.Changed++
		}
		delete(previous, it.Key)

		if _, err := l.cache.Set(it.Key, it); err != nil {
			return fmt.Errorf("library: %w", err)
		}
	}

	for key := range previous {
		if _, err := l.cache.Delete(key); err != nil {
			return fmt.Errorf("library: %w", err)
		}
		rep.Removed++
	}
	if err := l.cache.Touch(); err != nil {
		return fmt.Errorf("library: %w", err)
	}

	rep.Items = len(items)
	rep.CacheRebuilt = true
	l.logger.Info("library: cache rebuilt",
		slog.Int("items", rep.Items),
		slog.Int("removed", rep.Removed))
	return nil
}

// rebuildIndexes refills both indexes from the cache. Caller holds l.mu.
func (l *Library) rebuildIndexes(rep *Report) error {
	for _, ix := range []*fts.Index{l.plain, l.folded} {
		n, err := ix.Rebuild(l.cachedItems())
		if err != nil {
			return fmt.Errorf("library: index %s: %w", ix.Path(), err)
		}
		rep.Indexed = n
	}
	return nil
}

// cachedItems decodes every cached value. The cache is single-connection,
// so nothing else may touch it while the sequence is ranged over.
func (l *Library) cachedItems() iter.Seq2[models.Item, error] {
	return func(yield func(models.Item, error) bool) {
		for e, err := range l.cache.Items() {
			if err != nil {
				yield(models.Item{}, err)
				return
			}
			var it models.Item
			if err := json.Unmarshal(e.Value, &it); err != nil {
				yield(models.Item{}, fmt.Errorf("library: decode %s: %w", e.Key, err))
				return
			}
			it.Normalize()
			if !yield(it, nil) {
				return
			}
		}
	}
}

// Item returns the cached item stored under key.
func (l *Library) Item(key string) (models.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.item(key)
}

func (l *Library) item(key string) (models.Item, error) {
	var it models.Item
	ok, err := l.cache.Get(key, &it)
	if err != nil {
		return models.Item{}, fmt.Errorf("library: %w", err)
	}
	if !ok {
		return models.Item{}, fmt.Errorf("library: item %s: %w", key, apperr.ErrNotFound)
	}
	it.Normalize()
	return it, nil
}

// Attachment returns the attachment attKey of item key.
func (l *Library) Attachment(key, attKey string) (models.Attachment, error) {
	it, err := l.Item(key)
	if err != nil {
		return models.Attachment{}, err
	}
	for _, a := range it.Attachments {
		if a.Key == attKey {
			return a, nil
		}
	}
	return models.Attachment{}, fmt.Errorf("library: attachment %s/%s: %w", key, attKey, apperr.ErrNotFound)
}

// Search runs q and returns the ranked hits with their items. Hits whose
// item is no longer cached are dropped.
func (l *Library) Search(q fts.Query) ([]Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	hits, err := fts.Searcher{Plain: l.plain, Folded: l.folded}.Search(q)
	if err != nil {
		return nil, fmt.Errorf("library: %w", err)
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		it, err := l.item(h.Key)
		if errors.Is(err, apperr.ErrNotFound) {
			l.logger.Debug("library: hit without cached item", slog.String("key", h.Key))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Result{Hit: h, Item: it})
	}
	return out, nil
}

// Stats reports counts and timestamps. A missing source is reported in
// the status rather than as an error.
func (l *Library) Stats() (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	var err error
	if s.Items, err = l.cache.Len(); err != nil {
		return s, fmt.Errorf("library: %w", err)
	}
	if s.Indexed, err = l.plain.Count(); err != nil {
		return s, fmt.Errorf("library: %w", err)
	}
	if s.FoldedIndexed, err = l.folded.Count(); err != nil {
		return s, fmt.Errorf("library: %w", err)
	}
	if s.CacheUpdated, err = l.cache.Updated(); err != nil {
		return s, fmt.Errorf("library: %w", err)
	}
	if t, err := l.mirror.ModTime(); err == nil {
		s.MirrorModTime = t
	}
	if t, err := l.mirror.SourceModTime(); err == nil {
		s.SourceModTime = t
	}
	st, err := l.checker.Check()
	if err != nil && !errors.Is(err, apperr.ErrSourceUnavailable) {
		return s, fmt.Errorf("library: %w", err)
	}
	s.Status = st
	return s, nil
}

// Reset removes the mirror, the cache and both indexes and reopens empty
// ones in their place.
func (l *Library) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.closeDerived(); err != nil {
		l.logger.Warn("library: close before reset", slog.String("error", err.Error()))
	}
	if err := l.mirror.Remove(); err != nil {
		return fmt.Errorf("library: %w", err)
	}
	for _, name := range []string{CacheFile, IndexFile, FoldedIndexFile} {
		base := filepath.Join(l.cfg.DataDir, name)
		for _, p := range []string{base, base + "-wal", base + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("library: remove %s: %w", p, err)
			}
		}
	}
	l.logger.Info("library: reset", slog.String("dir", l.cfg.DataDir))
	return l.openDerived()
}
