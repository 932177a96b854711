// Package blogkey encodes article identities and versions into store keys.
//
// A key has the form "category_slug_version" where version is the source
// file's modification time in Unix milliseconds. Keys are only built and
// parsed here; the rest of the engine works with Key values.
package blogkey

import (
	"strconv"
	"strings"

	"github.com/starford/mdblog/internal/models"
)

// Separator joins the three key components.
const Separator = "_"

// Key is a decoded store key.
type Key struct {
	Category string
	Slug     string
	Version  int64
}

// Identity returns the (category, slug) pair of k.
func (k Key) Identity() models.Identity {
	return models.Identity{Category: k.Category, Slug: k.Slug}
}

// String encodes k.
func (k Key) String() string {
	return Encode(k.Category, k.Slug, k.Version)
}

// Encode builds the store key for an article version.
func Encode(category, slug string, version int64) string {
	return category + Separator + slug + Separator + strconv.FormatInt(version, 10)
}

// Decode parses a store key. It reports false for any key that is not
// exactly three components with a non-empty category and slug and a
// positive version in canonical decimal form.
func Decode(key string) (Key, bool) {
	parts := strings.Split(key, Separator)
	if len(parts) != 3 {
		return Key{}, false
	}
	category, slug, raw := parts[0], parts[1], parts[2]
	if category == "" || slug == "" {
		return Key{}, false
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		return Key{}, false
	}
	// "0100" and "+100" parse fine but would not round-trip.
	if strconv.FormatInt(version, 10) != raw {
		return Key{}, false
	}
	return Key{Category: category, Slug: slug, Version: version}, true
}

// ValidName reports whether s can be used as a category or slug.
func ValidName(s string) bool {
	return s != "" && !strings.Contains(s, Separator)
}
