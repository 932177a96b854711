package store

import (
	"context"

	"github.com/starford/mdblog/internal/models"
)

// Writer is the store surface the sync engine needs: inventory plus
// idempotent save and remove.
type Writer interface {
	Keys(ctx context.Context) ([]string, error)
	Save(ctx context.Context, key string, a *models.Article) error
	Remove(ctx context.Context, key string) error
}

// Reader is the store surface read paths need.
type Reader interface {
	Categories(ctx context.Context) ([]models.CategoryCount, error)
	ListArticles(ctx context.Context, q models.ArticleQuery) ([]models.Article, error)
	GetArticle(ctx context.Context, category, slug string) (*models.Article, error)
}

// Repository combines both surfaces.
// Consumers should depend on the narrowest interface they need rather than
// the concrete *DB type to facilitate testing with fakes.
type Repository interface {
	Writer
	Reader
	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
