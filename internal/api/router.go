package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/zotindex/internal/itemservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *itemservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ah := NewAttachmentHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Items.
	r.Get("/items/{key}", h.GetItem)
	r.Get("/items/{key}/attachments/{attachmentKey}", ah.ServeFile)

	// Search.
	r.Get("/search", h.Search)

	// Library state.
	r.Get("/status", h.Status)
	r.Post("/sync", h.Sync)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
