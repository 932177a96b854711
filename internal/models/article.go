// Package models defines the domain types for mdblog.
package models

import "time"

// Identity names one logical article regardless of version.
type Identity struct {
	Category string `json:"category"`
	Slug     string `json:"slug"`
}

// String returns "category/slug".
func (id Identity) String() string {
	return id.Category + "/" + id.Slug
}

// Source is an article file found on disk.
type Source struct {
	Identity
	ModifiedAt time.Time
}

// Version returns the file modification time as Unix milliseconds.
func (s Source) Version() int64 {
	return s.ModifiedAt.UnixMilli()
}

// Article is the rendered record persisted in the store.
type Article struct {
	Category string    `json:"category"`
	Slug     string    `json:"slug"`
	Version  int64     `json:"version"`
	Title    string    `json:"title"`
	Excerpt  string    `json:"excerpt"`
	Body     string    `json:"body,omitempty"`
	Checksum string    `json:"checksum,omitempty"`
	Modified time.Time `json:"modified"`
}

// Identity returns the article's (category, slug) pair.
func (a *Article) Identity() Identity {
	return Identity{Category: a.Category, Slug: a.Slug}
}

// CategoryCount is a category name with the number of articles it holds.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ArticleQuery filters article listings. Zero From/To disables the time
// window; Limit <= 0 means no limit.
type ArticleQuery struct {
	Category string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// VersionTime converts a millisecond version back to a UTC timestamp.
func VersionTime(version int64) time.Time {
	return time.UnixMilli(version).UTC()
}
