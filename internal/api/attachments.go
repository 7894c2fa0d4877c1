package api

import (
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/zotindex/internal/itemservice"
)

// AttachmentHandler serves attachment files from Zotero's storage directory.
type AttachmentHandler struct {
	svc *itemservice.Service
}

// NewAttachmentHandler creates a handler backed by svc.
func NewAttachmentHandler(svc *itemservice.Service) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// ServeFile handles GET /items/{key}/attachments/{attachmentKey}. Only
// attachments listed on the cached item are served.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	attKey := chi.URLParam(r, "attachmentKey")

	af, f, err := h.svc.OpenAttachment(r.Context(), key, attKey)
	if err != nil {
		writeError(w, "serve attachment failed", err,
			slog.String("key", key),
			slog.String("attachment", attKey))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": af.Name}))
	http.ServeContent(w, r, af.Name, info.ModTime(), f)
}
