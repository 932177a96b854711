// Package storage reads the articles tree: one directory per category, one
// Markdown file per article.
package storage

import (
	"context"

	"github.com/starford/mdblog/internal/models"
)

// Provider is the read-only view of the articles tree used by the sync engine.
type Provider interface {
	// Scan lists every article file under the root.
	Scan(ctx context.Context) ([]models.Source, error)
	// Read returns the raw Markdown of one article.
	Read(id models.Identity) ([]byte, error)
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
