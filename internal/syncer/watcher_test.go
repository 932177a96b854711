package syncer

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatch_NewArticleSynced(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	if err := os.MkdirAll(filepath.Join(root, "news"), 0o755); err != nil {
		t.Fatal(err)
	}
	e := New(fs, db, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, e, root, 50*time.Millisecond, quietLogger())
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "news", "launch.md"), []byte("# Launch\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetArticle(context.Background(), "news", "launch")
		return err == nil
	}, "new article not synced by watcher")
}

func TestWatch_NewCategoryWatched(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	e := New(fs, db, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, e, root, 50*time.Millisecond, quietLogger())
	time.Sleep(100 * time.Millisecond)

	dir := filepath.Join(root, "go")
	_ = os.MkdirAll(dir, 0o755)
	time.Sleep(200 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(dir, "errgroup.md"), []byte("# Errgroup\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.GetArticle(context.Background(), "go", "errgroup")
		return err == nil
	}, "article in new category not synced by watcher")
}

func TestWatch_DeleteRemovesArticle(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	writeArticle(t, root, "news", "gone", "# Gone\n", 1000)
	e := New(fs, db, WithLogger(quietLogger()))
	if _, err := e.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if keys := storedKeys(t, db); !slices.Equal(keys, []string{"news_gone_1000"}) {
		t.Fatalf("precondition: keys = %v", keys)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, e, root, 50*time.Millisecond, quietLogger())
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "news", "gone.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(storedKeys(t, db)) == 0
	}, "deleted article still in store")
}

func TestWatch_StopsOnCancel(t *testing.T) {
	root, fs, db := syncTestEnv(t)
	e := New(fs, db, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, e, root, 0, quietLogger()) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
