package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/zotindex/internal/itemservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *itemservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *itemservice.Service) *Handler {
	return &Handler{svc: svc}
}

// GetItem handles GET /api/items/{key}.
//
//	@Summary		Get a cached item by key
//	@Tags			items
//	@Produce		json
//	@Param			key	path		string	true	"Item key"
//	@Success		200	{object}	Item
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{key} [get]
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	it, err := h.svc.GetItem(r.Context(), key)
	if err != nil {
		writeError(w, "get item failed", err, slog.String("key", key))
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// Search handles GET /api/search.
//
//	@Summary		Ranked full-text search across the library
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			column	query		string	false	"Restrict matching to one indexed column"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	column := r.URL.Query().Get("column")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, column, limit)
	if err != nil {
		writeError(w, "search failed", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Status handles GET /api/status.
//
//	@Summary		Library counts, timestamps and freshness
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, "status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/sync.
//
//	@Summary		Sync the mirror, cache and indexes with Zotero
//	@Tags			library
//	@Produce		json
//	@Param			force	query		bool	false	"Rebuild even when fresh"
//	@Success		200		{object}	SyncResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	rep, err := h.svc.Sync(r.Context(), force)
	if err != nil {
		writeError(w, "sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
