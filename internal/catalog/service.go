// Package catalog serves the read side of the blog: categories, article
// listings and single articles over the collapsed store.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/mdblog/internal/apperr"
	"github.com/starford/mdblog/internal/models"
	"github.com/starford/mdblog/internal/store"
)

// Service coordinates store reads and the category cache.
type Service struct {
	store store.Reader
	cache *CategoryCache
	now   func() time.Time
}

// NewService creates a read service. A nil cache disables memoization.
func NewService(st store.Reader, cache *CategoryCache) *Service {
	return &Service{store: st, cache: cache, now: time.Now}
}

// Categories returns every category with its article count, sorted by name.
func (s *Service) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	if s.cache == nil {
		return s.loadCategories(ctx)
	}
	return s.cache.Get(ctx, s.loadCategories)
}

func (s *Service) loadCategories(ctx context.Context) ([]models.CategoryCount, error) {
	cats, err := s.store.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: categories: %w", err)
	}
	return cats, nil
}

// HasCategory reports whether any stored article belongs to name.
func (s *Service) HasCategory(ctx context.Context, name string) (bool, error) {
	cats, err := s.Categories(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range cats {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Articles lists article summaries newest first. A query naming an unknown
// category yields apperr.ErrNotFound.
func (s *Service) Articles(ctx context.Context, q models.ArticleQuery) ([]models.Article, error) {
	if q.Category != "" {
		ok, err := s.HasCategory(ctx, q.Category)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("catalog: category %q: %w", q.Category, apperr.ErrNotFound)
		}
	}
	list, err := s.store.ListArticles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	if list == nil {
		list = []models.Article{}
	}
	return list, nil
}

// ArticlesInMonth lists the articles whose version falls in month ("YYYY-MM",
// empty for the current month), optionally restricted to one category.
func (s *Service) ArticlesInMonth(ctx context.Context, category, month string) ([]models.Article, error) {
	from, to, err := MonthWindow(month, s.now())
	if err != nil {
		return nil, err
	}
	return s.Articles(ctx, models.ArticleQuery{Category: category, From: from, To: to})
}

// Article returns the newest stored version of category/slug.
func (s *Service) Article(ctx context.Context, category, slug string) (*models.Article, error) {
	a, err := s.store.GetArticle(ctx, category, slug)
	if err != nil {
		return nil, fmt.Errorf("catalog: article %s/%s: %w", category, slug, err)
	}
	return a, nil
}

// Invalidate drops memoized category counts. Wired as a sync after-hook.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}
