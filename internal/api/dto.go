package api

import (
	"github.com/starford/zotindex/internal/itemservice"
	"github.com/starford/zotindex/internal/library"
	"github.com/starford/zotindex/internal/models"
)

// Item is the cached item record (aliased from the domain layer).
type Item = models.Item

// SearchResult is a single search hit (aliased from the service layer).
type SearchResult = itemservice.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// StatusResponse is the library status payload.
type StatusResponse = library.Stats

// SyncResponse summarises a sync.
type SyncResponse = library.Report
