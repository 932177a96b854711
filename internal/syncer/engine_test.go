package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/mdblog/internal/apperr"
	"github.com/starford/mdblog/internal/models"
	"github.com/starford/mdblog/internal/storage"
	"github.com/starford/mdblog/internal/store"
	"github.com/starford/mdblog/internal/testutil"
)

// syncTestEnv sets up an articles dir, provider and store for engine tests.
func syncTestEnv(t *testing.T) (string, *storage.FS, *store.DB) {
	t.Helper()
	root, fs := testutil.TestArticles(t)
	return root, fs, testutil.TestDB(t)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeArticle writes root/category/slug.md with its mtime pinned to version ms.
func writeArticle(t *testing.T, root, category, slug, content string, version int64) {
	t.Helper()
	testutil.WriteArticle(t, root, category, slug, content, time.UnixMilli(version))
}

func seed(t *testing.T, db *store.DB, key, category, slug string, version int64, title string) {
	t.Helper()
	a := &models.Article{Category: category, Slug: slug, Version: version, Title: title}
	if err := db.Save(context.Background(), key, a); err != nil {
		t.Fatal(err)
	}
}

func storedKeys(t *testing.T, db *store.DB) []string {
	t.Helper()
	keys, err := db.Keys(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	return keys
}

func TestSync_InsertsThenIsIdempotent(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "launch", "# Launch\nShipped.\n", 1000)
	writeArticle(t, root, "go", "errgroup", "# Errgroup\nFan out.\n", 2000)
	e := New(fs, db, WithLogger(quietLogger()))

	first, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if diff := cmp.Diff([]string{"go_errgroup_2000", "news_launch_1000"}, first.Saved); diff != "" {
		t.Errorf("saved (-want +got):\n%s", diff)
	}
	if first.RunID == "" {
		t.Error("expected run id")
	}

	second, err := e.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if second.Changed() {
		t.Errorf("second run should be a no-op: removed=%v saved=%v", second.Removed, second.Saved)
	}
	if second.Unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", second.Unchanged)
	}

	a, err := db.GetArticle(context.Background(), "news", "launch")
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if a.Title != "Launch" || !strings.Contains(a.Body, "Shipped.") {
		t.Errorf("stored article = %+v", a)
	}
}

func TestSync_ReplacesStaleVersion(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "launch", "# Launch v2\n", 1000)
	seed(t, db, "news_launch_900", "news", "launch", 900, "Launch v1")

	report, err := New(fs, db, WithLogger(quietLogger())).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if diff := cmp.Diff([]string{"news_launch_900"}, report.Removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"news_launch_1000"}, report.Saved); diff != "" {
		t.Errorf("saved (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"news_launch_1000"}, storedKeys(t, db)); diff != "" {
		t.Errorf("store keys (-want +got):\n%s", diff)
	}
	a, _ := db.GetArticle(context.Background(), "news", "launch")
	if a == nil || a.Title != "Launch v2" {
		t.Errorf("article = %+v", a)
	}
}

func TestSync_UpToDateNotReloaded(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "launch", "# From Disk\n", 1000)
	seed(t, db, "news_launch_1000", "news", "launch", 1000, "Already Stored")

	report, err := New(fs, db, WithLogger(quietLogger())).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Changed() {
		t.Errorf("expected no mutations, got removed=%v saved=%v", report.Removed, report.Saved)
	}
	a, _ := db.GetArticle(context.Background(), "news", "launch")
	if a == nil || a.Title != "Already Stored" {
		t.Errorf("up-to-date article was reloaded: %+v", a)
	}
}

func TestSync_DedupKeepsNewest(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "cat", "slug", "# Slug\n", 200)
	seed(t, db, "cat_slug_100", "cat", "slug", 100, "old")
	seed(t, db, "cat_slug_200", "cat", "slug", 200, "new")

	report, err := New(fs, db, WithLogger(quietLogger())).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if diff := cmp.Diff([]string{"cat_slug_100"}, report.Removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if len(report.Saved) != 0 {
		t.Errorf("nothing should be saved, got %v", report.Saved)
	}
	if diff := cmp.Diff([]string{"cat_slug_200"}, storedKeys(t, db)); diff != "" {
		t.Errorf("store keys (-want +got):\n%s", diff)
	}
}

func TestSync_OrphansAndInvalidKeysPurged(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "launch", "# Launch\n", 1000)
	seed(t, db, "news_launch_1000", "news", "launch", 1000, "Launch")
	seed(t, db, "cat_gone_100", "cat", "gone", 100, "Gone")
	seed(t, db, "not-a-key", "", "", 0, "")
	seed(t, db, "news_launch_abc", "news", "launch", 0, "")

	report, err := New(fs, db, WithLogger(quietLogger())).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	want := []string{"cat_gone_100", "news_launch_abc", "not-a-key"}
	if diff := cmp.Diff(want, report.Removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"news_launch_1000"}, storedKeys(t, db)); diff != "" {
		t.Errorf("store keys (-want +got):\n%s", diff)
	}
}

func TestSync_MissingTitleReportedAndSkipped(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "untitled", "no heading here\n", 1000)
	writeArticle(t, root, "news", "launch", "# Launch\n", 1000)

	report, err := New(fs, db, WithLogger(quietLogger())).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if diff := cmp.Diff([]string{"news_launch_1000"}, report.Saved); diff != "" {
		t.Errorf("saved (-want +got):\n%s", diff)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %v, want 1", report.Failures)
	}
	var mt *apperr.MissingTitleError
	if !errors.As(report.Failures[0], &mt) || mt.Slug != "untitled" || mt.Category != "news" {
		t.Errorf("failure = %v, want MissingTitleError for news/untitled", report.Failures[0])
	}
	if !errors.Is(report.Err(), apperr.ErrMissingTitle) {
		t.Errorf("Report.Err() = %v", report.Err())
	}
	if _, err := db.GetArticle(context.Background(), "news", "untitled"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("untitled article must not be stored, got %v", err)
	}
}

func TestSync_ScanFailureMutatesNothing(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	seed(t, db, "news_launch_1000", "news", "launch", 1000, "Launch")
	seed(t, db, "garbage", "", "", 0, "")
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}

	report, err := New(fs, db, WithLogger(quietLogger())).Sync(context.Background())
	var scanErr *apperr.ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("expected ScanError, got %v", err)
	}
	if report != nil {
		t.Errorf("expected no report on fatal error, got %+v", report)
	}
	if diff := cmp.Diff([]string{"garbage", "news_launch_1000"}, storedKeys(t, db)); diff != "" {
		t.Errorf("store must be untouched (-want +got):\n%s", diff)
	}
}

func TestSync_UnencodableNamesSkipped(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "my_post", "# Underscored\n", 1000)
	writeArticle(t, root, "dev_log", "entry", "# Entry\n", 1000)
	writeArticle(t, root, "news", "launch", "# Launch\n", 1000)
	e := New(fs, db, WithLogger(quietLogger()))

	for run := 0; run < 2; run++ {
		if _, err := e.Sync(context.Background()); err != nil {
			t.Fatalf("Sync: %v", err)
		}
		if diff := cmp.Diff([]string{"news_launch_1000"}, storedKeys(t, db)); diff != "" {
			t.Errorf("run %d store keys (-want +got):\n%s", run, diff)
		}
	}
}

func TestSync_HooksAndEvents(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "launch", "# Launch\n", 1000)
	seed(t, db, "old_post_1", "old", "post", 1, "Old")

	var (
		mu     sync.Mutex
		events []string
		hooks  int
	)
	e := New(fs, db,
		WithLogger(quietLogger()),
		WithEventCallback(func(kind, key string) {
			mu.Lock()
			events = append(events, kind+":"+key)
			mu.Unlock()
		}),
		WithAfterSync(func(*Report) { hooks++ }),
	)

	if _, err := e.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := e.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	sort.Strings(events)
	if diff := cmp.Diff([]string{"removed:old_post_1", "saved:news_launch_1000"}, events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if hooks != 1 {
		t.Errorf("after-sync hooks = %d, want 1 (only the run that changed the store)", hooks)
	}
}

// flakyStore is an in-memory store.Writer whose operations fail for chosen keys.
type flakyStore struct {
	mu       sync.Mutex
	keys     map[string]*models.Article
	failOn   map[string]bool
	keysErr  error
	removals int
}

func newFlakyStore(keys ...string) *flakyStore {
	s := &flakyStore{keys: map[string]*models.Article{}, failOn: map[string]bool{}}
	for _, k := range keys {
		s.keys[k] = &models.Article{}
	}
	return s
}

func (s *flakyStore) Keys(context.Context) ([]string, error) {
	if s.keysErr != nil {
		return nil, &apperr.StoreError{Op: "keys", Err: s.keysErr}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	return out, nil
}

func (s *flakyStore) Save(_ context.Context, key string, a *models.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[key] {
		return &apperr.StoreError{Op: "save", Key: key, Err: errors.New("disk full")}
	}
	s.keys[key] = a
	return nil
}

func (s *flakyStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removals++
	if s.failOn[key] {
		return &apperr.StoreError{Op: "remove", Key: key, Err: errors.New("timeout")}
	}
	delete(s.keys, key)
	return nil
}

func TestSync_StoreFailuresDoNotAbortBatch(t *testing.T) {
	root, fs, _ := syncTestEnv(t)
	for i := 0; i < 6; i++ {
		writeArticle(t, root, "bulk", fmt.Sprintf("a%d", i), "# Title\n", 1000)
	}
	st := newFlakyStore("x_stuck_1", "x_free_1")
	st.failOn["x_stuck_1"] = true
	st.failOn["bulk_a3_1000"] = true

	report, err := New(fs, st, WithLogger(quietLogger()), WithWorkers(2)).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(report.Saved) != 5 {
		t.Errorf("saved = %v, want 5 entries", report.Saved)
	}
	if diff := cmp.Diff([]string{"x_free_1"}, report.Removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	var keys []string
	for _, f := range report.Failures {
		var se *apperr.StoreError
		if !errors.As(f, &se) {
			t.Errorf("unexpected failure type %v", f)
			continue
		}
		keys = append(keys, se.Key)
	}
	if diff := cmp.Diff([]string{"bulk_a3_1000", "x_stuck_1"}, keys, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("failed keys (-want +got):\n%s", diff)
	}
}

func TestSync_StoreInventoryFailureMutatesNothing(t *testing.T) {
	root, fs, _ := syncTestEnv(t)
	writeArticle(t, root, "news", "launch", "# Launch\n", 1000)
	st := newFlakyStore("junk")
	st.keysErr = errors.New("connection refused")

	_, err := New(fs, st, WithLogger(quietLogger())).Sync(context.Background())
	var se *apperr.StoreError
	if !errors.As(err, &se) || se.Op != "keys" {
		t.Fatalf("expected keys StoreError, got %v", err)
	}
	if st.removals != 0 || len(st.keys) != 1 {
		t.Errorf("store mutated after failed inventory: removals=%d keys=%d", st.removals, len(st.keys))
	}
}

func TestSync_CancelledContext(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "launch", "# Launch\n", 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(fs, db, WithLogger(quietLogger())).Sync(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if keys := storedKeys(t, db); len(keys) != 0 {
		t.Errorf("nothing should be stored, got %v", keys)
	}
}
