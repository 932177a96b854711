package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/starford/mdblog/internal/models"
)

// DefaultCacheTTL bounds how long category counts are served from memory
// when no sync invalidates them first.
const DefaultCacheTTL = 10 * time.Minute

// CategoryCache memoizes the category listing. It is invalidated after every
// sync run that changed the store, and expires after ttl regardless.
type CategoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	cats    []models.CategoryCount
	expires time.Time
	valid   bool
}

// NewCategoryCache creates a cache with the given ttl. A non-positive ttl
// uses DefaultCacheTTL.
func NewCategoryCache(ttl time.Duration) *CategoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CategoryCache{ttl: ttl, now: time.Now}
}

// Get returns the cached listing, calling load on a miss.
func (c *CategoryCache) Get(ctx context.Context, load func(context.Context) ([]models.CategoryCount, error)) ([]models.CategoryCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.now().Before(c.expires) {
		return c.cats, nil
	}
	cats, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []models.CategoryCount{}
	}
	c.cats = cats
	c.expires = c.now().Add(c.ttl)
	c.valid = true
	return cats, nil
}

// Invalidate drops the cached listing.
func (c *CategoryCache) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.cats = nil
	c.mu.Unlock()
}
