package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdblog/internal/apperr"
	"github.com/starford/mdblog/internal/catalog"
	"github.com/starford/mdblog/internal/checksum"
	"github.com/starford/mdblog/internal/models"
	"github.com/starford/mdblog/internal/syncer"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// Syncer runs one reconciliation pass.
type Syncer interface {
	Sync(ctx context.Context) (*syncer.Report, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *catalog.Service
	syncer Syncer
}

// NewHandler creates a new Handler. A nil syncer disables POST /sync.
func NewHandler(svc *catalog.Service, s Syncer) *Handler {
	return &Handler{svc: svc, syncer: s}
}

// ListCategories handles GET /api/categories.
//
//	@Summary		List categories with article counts
//	@Tags			categories
//	@Produce		json
//	@Success		200	{object}	CategoriesResponse
//	@Router			/categories [get]
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Categories(r.Context())
	if err != nil {
		slog.Error("list categories failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: cats})
}

// ListArticles handles GET /api/articles.
//
//	@Summary		List articles of one month, or one page of all articles
//	@Tags			articles
//	@Produce		json
//	@Param			month		query		string	false	"Month (YYYY-MM), defaults to the current month"
//	@Param			page		query		int		false	"Page number, switches to paginated listing"
//	@Param			per_page	query		int		false	"Page size"
//	@Success		200			{object}	ArticleListResponse
//	@Failure		400			{object}	errResponse
//	@Router			/articles [get]
func (h *Handler) ListArticles(w http.ResponseWriter, r *http.Request) {
	h.listArticles(w, r, "")
}

// ListCategoryArticles handles GET /api/articles/{category}.
//
//	@Summary		List articles of one category
//	@Tags			articles
//	@Produce		json
//	@Param			category	path		string	true	"Category"
//	@Param			month		query		string	false	"Month (YYYY-MM)"
//	@Param			page		query		int		false	"Page number"
//	@Param			per_page	query		int		false	"Page size"
//	@Success		200			{object}	ArticleListResponse
//	@Failure		404			{object}	errResponse
//	@Router			/articles/{category} [get]
func (h *Handler) ListCategoryArticles(w http.ResponseWriter, r *http.Request) {
	h.listArticles(w, r, chi.URLParam(r, "category"))
}

func (h *Handler) listArticles(w http.ResponseWriter, r *http.Request, category string) {
	q := r.URL.Query()
	var (
		list []models.Article
		resp ArticleListResponse
		err  error
	)
	if q.Has("page") || q.Has("per_page") {
		page, perPage, perr := pagination(q.Get("page"), q.Get("per_page"))
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(perr.Error()))
			return
		}
		resp.Page, resp.PerPage = page, perPage
		list, err = h.svc.Articles(r.Context(), models.ArticleQuery{
			Category: category,
			Limit:    perPage,
			Offset:   (page - 1) * perPage,
		})
	} else {
		resp.Month = q.Get("month")
		list, err = h.svc.ArticlesInMonth(r.Context(), category, resp.Month)
	}
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("category not found"))
		case errors.Is(err, apperr.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, errorBody("month must be YYYY-MM"))
		default:
			slog.Error("list articles failed", slog.String("category", category), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	if len(list) > 0 {
		w.Header().Set("Last-Modified", list[0].Modified.UTC().Format(http.TimeFormat))
	}
	resp.Articles = list
	writeJSON(w, http.StatusOK, resp)
}

// GetArticle handles GET /api/article/{category}/{slug}.
//
//	@Summary		Get a single article
//	@Tags			articles
//	@Produce		json
//	@Param			category	path		string	true	"Category"
//	@Param			slug		path		string	true	"Slug"
//	@Success		200			{object}	ArticleResponse
//	@Success		304			"Not modified"
//	@Failure		404			{object}	errResponse
//	@Router			/article/{category}/{slug} [get]
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	category, slug := chi.URLParam(r, "category"), chi.URLParam(r, "slug")
	a, err := h.svc.Article(r.Context(), category, slug)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get article failed", slog.String("category", category), slog.String("slug", slug), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	w.Header().Set("Last-Modified", a.Modified.UTC().Format(http.TimeFormat))
	if a.Checksum != "" {
		etag := checksum.ETag(a.Checksum)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, ArticleResponse{Article: a})
}

// Sync handles POST /api/sync.
//
//	@Summary		Reconcile the store with the articles directory
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Failure		500	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("sync unavailable"))
		return
	}
	report, err := h.syncer.Sync(r.Context())
	if err != nil {
		slog.Error("sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, syncResponse(report))
}

func syncResponse(report *syncer.Report) SyncResponse {
	return SyncResponse{
		RunID:     report.RunID,
		Removed:   nonNil(report.Removed),
		Saved:     nonNil(report.Saved),
		Unchanged: report.Unchanged,
		Failures:  report.FailureMessages(),
		Duration:  report.Duration,
	}
}

// pagination parses 1-based page and per_page, applying defaults.
func pagination(pageStr, perPageStr string) (int, int, error) {
	page, perPage := 1, defaultPerPage
	if pageStr != "" {
		n, err := strconv.Atoi(pageStr)
		if err != nil || n < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = n
	}
	if perPageStr != "" {
		n, err := strconv.Atoi(perPageStr)
		if err != nil || n < 1 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		perPage = min(n, maxPerPage)
	}
	if page > math.MaxInt/perPage {
		return 0, 0, errors.New("page out of range")
	}
	return page, perPage, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
