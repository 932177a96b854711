package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/mdblog/internal/apperr"
	"github.com/starford/mdblog/internal/models"
)

// validRows restricts read paths to rows saved from a real article.
const validRows = `category <> '' AND slug <> '' AND version > 0`

// Keys returns every key in the collection, including ones that no longer
// decode.
func (db *DB) Keys(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key FROM blog`)
	if err != nil {
		return nil, &apperr.StoreError{Op: "keys", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &apperr.StoreError{Op: "keys", Err: err}
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperr.StoreError{Op: "keys", Err: err}
	}
	return out, nil
}

// Save inserts or replaces the article stored under key.
func (db *DB) Save(ctx context.Context, key string, a *models.Article) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO blog (key, category, slug, version, title, excerpt, body, checksum, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			category = excluded.category,
			slug     = excluded.slug,
			version  = excluded.version,
			title    = excluded.title,
			excerpt  = excluded.excerpt,
			body     = excluded.body,
			checksum = excluded.checksum,
			saved_at = excluded.saved_at
	`, key, a.Category, a.Slug, a.Version, a.Title, a.Excerpt, a.Body, a.Checksum)
	if err != nil {
		return &apperr.StoreError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (db *DB) Remove(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM blog WHERE key = ?`, key); err != nil {
		return &apperr.StoreError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Categories returns every category with its article count, sorted by name.
func (db *DB) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT category, COUNT(DISTINCT slug)
		FROM blog
		WHERE `+validRows+`
		GROUP BY category
		ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("store: categories: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryCount
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListArticles returns article summaries (no body), newest first. When the
// same identity is stored more than once only the newest version is listed.
func (db *DB) ListArticles(ctx context.Context, q models.ArticleQuery) ([]models.Article, error) {
	var (
		where  = []string{validRows}
		window = []string{"1 = 1"}
		args   []any
	)
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if !q.From.IsZero() {
		window = append(window, "version >= ?")
		args = append(args, q.From.UnixMilli())
	}
	if !q.To.IsZero() {
		window = append(window, "version <= ?")
		args = append(args, q.To.UnixMilli())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	// The inner query collapses each identity to its newest version; SQLite
	// returns the bare columns of the row holding MAX(version). The time
	// window applies to that version only.
	rows, err := db.conn.QueryContext(ctx, `
		SELECT category, slug, version, title, excerpt, checksum
		FROM (
			SELECT category, slug, MAX(version) AS version, title, excerpt, checksum
			FROM blog
			WHERE `+strings.Join(where, " AND ")+`
			GROUP BY category, slug
		)
		WHERE `+strings.Join(window, " AND ")+`
		ORDER BY version DESC, category, slug
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list articles: %w", err)
	}
	defer rows.Close()

	var out []models.Article
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.Category, &a.Slug, &a.Version, &a.Title, &a.Excerpt, &a.Checksum); err != nil {
			return nil, err
		}
		a.Modified = models.VersionTime(a.Version)
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetArticle returns the newest stored version of one article.
func (db *DB) GetArticle(ctx context.Context, category, slug string) (*models.Article, error) {
	var a models.Article
	err := db.conn.QueryRowContext(ctx, `
		SELECT category, slug, version, title, excerpt, body, checksum
		FROM blog
		WHERE `+validRows+` AND category = ? AND slug = ?
		ORDER BY version DESC
		LIMIT 1
	`, category, slug).Scan(&a.Category, &a.Slug, &a.Version, &a.Title, &a.Excerpt, &a.Body, &a.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get article %s/%s: %w", category, slug, err)
	}
	a.Modified = models.VersionTime(a.Version)
	return &a, nil
}
