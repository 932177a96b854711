// Package apperr holds the error taxonomy shared across mdblog packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrMissingTitle = errors.New("article title absent")
	ErrInvalidInput = errors.New("invalid input")
)

// ScanError reports that the articles tree could not be listed. It is fatal
// to a sync run.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// MissingTitleError reports an article whose first line is not a "# Title"
// heading. The article is never written to the store.
type MissingTitleError struct {
	Category string
	Slug     string
}

func (e *MissingTitleError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Category, e.Slug, ErrMissingTitle)
}

func (e *MissingTitleError) Is(target error) bool { return target == ErrMissingTitle }

// StoreError wraps a failed store operation on a single key.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
