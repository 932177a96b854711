package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdblog/internal/models"
)

// AttachmentResolver maps an attachment reference to a file on disk.
type AttachmentResolver interface {
	AttachmentPath(id models.Identity, rel string) (string, error)
}

// AttachmentHandler serves files stored next to an article, the targets of
// the relative references rewritten at render time.
type AttachmentHandler struct {
	files AttachmentResolver
}

// NewAttachmentHandler creates a handler resolving files through files.
func NewAttachmentHandler(files AttachmentResolver) *AttachmentHandler {
	return &AttachmentHandler{files: files}
}

// ServeFile handles GET /api/article/{category}/{slug}/*.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	id := models.Identity{
		Category: chi.URLParam(r, "category"),
		Slug:     chi.URLParam(r, "slug"),
	}
	rel := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	abs, err := h.files.AttachmentPath(id, rel)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid attachment path"))
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}
