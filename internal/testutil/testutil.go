// Package testutil provides shared test helpers for setting up article
// trees and stores.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/mdblog/internal/storage"
	"github.com/starford/mdblog/internal/store"
)

// TestDB creates a temporary SQLite store that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "mdblog-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArticles creates a temporary articles directory with a storage.FS.
func TestArticles(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, fs
}

// WriteArticle writes root/category/slug.md and pins its mtime, which is
// the article version.
func WriteArticle(t *testing.T, root, category, slug, content string, mtime time.Time) {
	t.Helper()
	path := filepath.Join(root, category, slug+storage.Ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}
