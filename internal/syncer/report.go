package syncer

import (
	"errors"
	"sync"
	"time"
)

// Report summarises one sync run. Failures hold the non-fatal errors of
// individual documents and store operations.
type Report struct {
	RunID     string        `json:"run_id"`
	Removed   []string      `json:"removed"`
	Saved     []string      `json:"saved"`
	Unchanged int           `json:"unchanged"`
	Failures  []error       `json:"-"`
	Duration  time.Duration `json:"duration"`

	mu sync.Mutex
}

// Changed reports whether the run mutated the store.
func (r *Report) Changed() bool {
	return len(r.Removed) > 0 || len(r.Saved) > 0
}

// Err joins all non-fatal failures, or returns nil.
func (r *Report) Err() error {
	return errors.Join(r.Failures...)
}

// FailureMessages returns Failures as strings for JSON responses.
func (r *Report) FailureMessages() []string {
	out := make([]string, 0, len(r.Failures))
	for _, err := range r.Failures {
		out = append(out, err.Error())
	}
	return out
}

func (r *Report) addRemoved(key string) {
	r.mu.Lock()
	r.Removed = append(r.Removed, key)
	r.mu.Unlock()
}

func (r *Report) addSaved(key string) {
	r.mu.Lock()
	r.Saved = append(r.Saved, key)
	r.mu.Unlock()
}

func (r *Report) addFailure(err error) {
	r.mu.Lock()
	r.Failures = append(r.Failures, err)
	r.mu.Unlock()
}
