// Package itemservice is the context-aware facade over a library that the
// REST API and the MCP server share.
package itemservice

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/zotindex/internal/fts"
	"github.com/starford/zotindex/internal/library"
	"github.com/starford/zotindex/internal/models"
)

// Search limits.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// Publisher is notified after every sync.
type Publisher interface {
	PublishSync(report any, err error)
}

// Library is the subset of *library.Library the service needs.
type Library interface {
	Item(key string) (models.Item, error)
	Attachment(key, attKey string) (models.Attachment, error)
	Search(q fts.Query) ([]library.Result, error)
	Stats() (library.Stats, error)
	Sync(force bool) (library.Report, error)
}

// Resolver locates attachment files on disk.
type Resolver interface {
	Resolve(path string) (string, error)
}

// SearchResult is a lightweight search hit.
type SearchResult struct {
	Key      string   `json:"key"`
	Score    float64  `json:"score"`
	Title    string   `json:"title"`
	Type     string   `json:"type"`
	Creators []string `json:"creators"`
	Date     string   `json:"date"`
}

// AttachmentFile is an attachment together with its resolved file.
type AttachmentFile struct {
	models.Attachment
	File string `json:"-"`
}

// Service coordinates library reads, syncs and notifications.
type Service struct {
	lib      Library
	resolver Resolver
	pub      Publisher
	logger   *slog.Logger
}

// NewService creates a service over lib. pub may be nil.
func NewService(lib Library, resolver Resolver, pub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{lib: lib, resolver: resolver, pub: pub, logger: logger}
}

// GetItem returns the cached item stored under key.
func (s *Service) GetItem(_ context.Context, key string) (*models.Item, error) {
	it, err := s.lib.Item(key)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetAttachment resolves attachment attKey of item key to a file on disk.
func (s *Service) GetAttachment(_ context.Context, key, attKey string) (*AttachmentFile, error) {
	a, err := s.lib.Attachment(key, attKey)
	if err != nil {
		return nil, err
	}
	if s.resolver == nil {
		return nil, fmt.Errorf("itemservice: no attachment storage configured")
	}
	file, err := s.resolver.Resolve(a.Path)
	if err != nil {
		return nil, err
	}
	return &AttachmentFile{Attachment: a, File: file}, nil
}

// OpenAttachment opens the file behind GetAttachment.
func (s *Service) OpenAttachment(ctx context.Context, key, attKey string) (*AttachmentFile, *os.File, error) {
	af, err := s.GetAttachment(ctx, key, attKey)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(af.File)
	if err != nil {
		return nil, nil, fmt.Errorf("itemservice: open attachment: %w", err)
	}
	return af, f, nil
}

// Search runs a ranked full-text query. limit is clamped to [1, MaxLimit]
// with DefaultLimit for zero or negative values.
func (s *Service) Search(_ context.Context, query, column string, limit int) ([]SearchResult, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	res, err := s.lib.Search(fts.Query{Text: query, Column: column, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, len(res))
	for i, r := range res {
		out[i] = summarize(r)
	}
	return out, nil
}

func summarize(r library.Result) SearchResult {
	creators := make([]string, 0, len(r.Item.Creators))
	for _, c := range r.Item.Creators {
		creators = append(creators, c.Family)
	}
	var date string
	if r.Item.Data != nil {
		date, _ = r.Item.Data.Get("date")
	}
	return SearchResult{
		Key:      r.Key,
		Score:    r.Score,
		Title:    r.Item.Title(),
		Type:     r.Item.Type,
		Creators: creators,
		Date:     date,
	}
}

// Status reports the library's counts, timestamps and freshness.
func (s *Service) Status(_ context.Context) (library.Stats, error) {
	return s.lib.Stats()
}

// Sync runs a library sync and publishes its outcome.
func (s *Service) Sync(_ context.Context, force bool) (library.Report, error) {
	rep, err := s.lib.Sync(force)
	s.Notify(rep, err)
	return rep, err
}

// Notify publishes a sync outcome produced elsewhere, e.g. by the watcher.
// Syncs that found nothing to do are not published.
func (s *Service) Notify(rep library.Report, err error) {
	if err != nil {
		s.logger.Warn("itemservice: sync failed", slog.String("error", err.Error()))
	}
	if s.pub == nil || (err == nil && !rep.CacheRebuilt) {
		return
	}
	s.pub.PublishSync(rep, err)
}
