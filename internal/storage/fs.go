package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mdblog/internal/apperr"
	"github.com/starford/mdblog/internal/models"
)

// Ext is the file extension of article sources.
const Ext = ".md"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the articles directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute articles directory.
func (f *FS) Root() string {
	return f.root
}

// safePath joins rel onto the root and rejects any result that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes articles root: %s", rel)
	}
	return abs, nil
}

// Scan lists the categories under the root and then, concurrently, the
// article files of every category. A listing failure anywhere aborts the
// whole scan so callers never act on a partial inventory.
func (f *FS) Scan(ctx context.Context) ([]models.Source, error) {
	categories, err := f.categories()
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []models.Source
	)
	g, gCtx := errgroup.WithContext(ctx)
	for _, category := range categories {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			found, err := f.categorySources(category)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// categories returns the names of the root's immediate subdirectories.
func (f *FS) categories() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, &apperr.ScanError{Path: f.root, Err: err}
	}
	var out []string
	for _, e := range entries {
		if hidden(e.Name()) {
			continue
		}
		// Stat rather than DirEntry.IsDir so symlinked categories count.
		info, err := os.Stat(filepath.Join(f.root, e.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &apperr.ScanError{Path: filepath.Join(f.root, e.Name()), Err: err}
		}
		if info.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// categorySources lists the regular .md files of one category.
func (f *FS) categorySources(category string) ([]models.Source, error) {
	dir := filepath.Join(f.root, category)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &apperr.ScanError{Path: dir, Err: err}
	}
	var out []models.Source
	for _, e := range entries {
		name := e.Name()
		if hidden(name) || filepath.Ext(name) != Ext {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			// Removed since the listing, or a dangling symlink.
			continue
		}
		if err != nil {
			return nil, &apperr.ScanError{Path: filepath.Join(dir, name), Err: err}
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, models.Source{
			Identity:   models.Identity{Category: category, Slug: strings.TrimSuffix(name, Ext)},
			ModifiedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes of an article file.
func (f *FS) Read(id models.Identity) ([]byte, error) {
	abs, err := f.safePath(filepath.Join(id.Category, id.Slug+Ext))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", id, err)
	}
	return data, nil
}

// AttachmentPath resolves a resource referenced by an article. Resources
// live in a directory named after the article's slug, inside its category.
func (f *FS) AttachmentPath(id models.Identity, rel string) (string, error) {
	if id.Category == "" || id.Slug == "" || rel == "" {
		return "", fmt.Errorf("storage: attachment path requires category, slug and name")
	}
	abs, err := f.safePath(filepath.Join(id.Category, id.Slug, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	base := filepath.Join(f.root, id.Category, id.Slug)
	if !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: attachment escapes article directory: %s", rel)
	}
	return abs, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
