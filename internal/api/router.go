package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdblog/internal/catalog"
)

// categoriesMaxAge is the client cache lifetime of the category listing, one week.
const categoriesMaxAge = 7 * 24 * 60 * 60

// NewRouter creates a chi router with all API routes mounted.
// Read routes are public. authEnabled and token guard POST /sync.
// s may be nil to disable POST /sync. sseHandler, if non-nil, is mounted
// at GET /events.
func NewRouter(svc *catalog.Service, s Syncer, files AttachmentResolver, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, s)
	ah := NewAttachmentHandler(files)

	r := chi.NewRouter()

	r.With(CacheControl(categoriesMaxAge)).Get("/categories", h.ListCategories)

	r.Get("/articles", h.ListArticles)
	r.Get("/articles/{category}", h.ListCategoryArticles)

	r.Get("/article/{category}/{slug}", h.GetArticle)
	r.Get("/article/{category}/{slug}/*", ah.ServeFile)

	r.With(AuthMiddleware(authEnabled, token)).Post("/sync", h.Sync)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
