package api

import (
	"time"

	"github.com/starford/mdblog/internal/models"
)

// Article is the article payload (aliased from the domain layer).
type Article = models.Article

// CategoryCount is one entry of the category listing (aliased from the domain layer).
type CategoryCount = models.CategoryCount

// CategoriesResponse wraps the category listing.
type CategoriesResponse struct {
	Categories []CategoryCount `json:"categories" validate:"required"`
}

// ArticleListResponse wraps an article listing. Month is set for month
// listings, Page and PerPage for paginated ones.
type ArticleListResponse struct {
	Articles []Article `json:"articles" validate:"required"`
	Month    string    `json:"month,omitempty" example:"2012-09"`
	Page     int       `json:"page,omitempty" example:"1"`
	PerPage  int       `json:"per_page,omitempty" example:"10"`
}

// ArticleResponse wraps a single article.
type ArticleResponse struct {
	Article *Article `json:"article" validate:"required"`
}

// SyncResponse reports the outcome of a sync run.
type SyncResponse struct {
	RunID     string        `json:"run_id" validate:"required"`
	Removed   []string      `json:"removed" validate:"required"`
	Saved     []string      `json:"saved" validate:"required"`
	Unchanged int           `json:"unchanged" example:"42"`
	Failures  []string      `json:"failures" validate:"required"`
	Duration  time.Duration `json:"duration_ns" example:"1500000"`
}
