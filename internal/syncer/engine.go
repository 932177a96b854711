// Package syncer reconciles the articles tree into the article store.
package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdblog/internal/blogkey"
	"github.com/starford/mdblog/internal/models"
	"github.com/starford/mdblog/internal/parser"
	"github.com/starford/mdblog/internal/reconcile"
	"github.com/starford/mdblog/internal/storage"
	"github.com/starford/mdblog/internal/store"
)

// DefaultWorkers bounds concurrent article loads when no limit is configured.
const DefaultWorkers = 4

// Event kinds passed to EventCallback.
const (
	EventSaved   = "saved"
	EventRemoved = "removed"
)

// EventCallback is called after each successful store mutation.
type EventCallback func(kind, key string)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithWorkers bounds how many articles are loaded and saved concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithParser sets the article parser.
func WithParser(p *parser.Parser) Option {
	return func(e *Engine) { e.parser = p }
}

// WithEventCallback registers a per-mutation callback.
func WithEventCallback(cb EventCallback) Option {
	return func(e *Engine) { e.onEvent = cb }
}

// WithAfterSync registers a hook run after every run that changed the store.
func WithAfterSync(fn func(*Report)) Option {
	return func(e *Engine) { e.afterSync = append(e.afterSync, fn) }
}

// Engine runs sync passes. Passes are serialized; concurrent Sync calls wait
// for the running one to finish.
type Engine struct {
	src       storage.Provider
	store     store.Writer
	parser    *parser.Parser
	logger    *slog.Logger
	workers   int
	onEvent   EventCallback
	afterSync []func(*Report)

	mu sync.Mutex
}

// New creates an Engine reading articles from src and writing them to st.
func New(src storage.Provider, st store.Writer, opts ...Option) *Engine {
	e := &Engine{
		src:     src,
		store:   st,
		workers: DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.parser == nil {
		e.parser = parser.New("")
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

// Sync brings the store in line with the articles tree.
//
// The returned error is fatal: the tree or the store inventory could not be
// read and nothing was mutated, or ctx was cancelled mid-run. Per-article
// failures do not stop the run; they are collected in Report.Failures.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	logger := e.logger.With(slog.String("run_id", report.RunID))

	disk, keys, err := e.inventories(ctx, logger)
	if err != nil {
		logger.Error("sync: inventory failed, nothing changed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("sync: %w", err)
	}

	plan := reconcile.Compute(disk, keys)
	report.Unchanged = plan.Unchanged
	logger.Info("sync: plan computed",
		slog.Int("on_disk", len(disk)),
		slog.Int("stored", len(keys)),
		slog.Int("remove", len(plan.Remove)),
		slog.Int("insert", len(plan.Insert)),
		slog.Int("unchanged", plan.Unchanged))

	e.apply(ctx, logger, plan, report)

	sort.Strings(report.Removed)
	sort.Strings(report.Saved)
	report.Duration = time.Since(start)

	logger.Info("sync: finished",
		slog.Int("removed", len(report.Removed)),
		slog.Int("saved", len(report.Saved)),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", len(report.Failures)),
		slog.Duration("duration", report.Duration))

	if report.Changed() {
		for _, fn := range e.afterSync {
			fn(report)
		}
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("sync: interrupted: %w", err)
	}
	return report, nil
}

// inventories reads the articles tree and the store keys concurrently.
func (e *Engine) inventories(ctx context.Context, logger *slog.Logger) (reconcile.Inventory, []string, error) {
	var (
		sources []models.Source
		keys    []string
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sources, err = e.src.Scan(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		keys, err = e.store.Keys(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	disk := make(reconcile.Inventory, len(sources))
	for _, src := range sources {
		if !blogkey.ValidName(src.Category) || !blogkey.ValidName(src.Slug) {
			logger.Warn("sync: skipping article with unencodable name",
				slog.String("article", src.Identity.String()),
				slog.String("reserved", blogkey.Separator))
			continue
		}
		version := src.Version()
		if version <= 0 {
			logger.Warn("sync: skipping article with pre-epoch mtime", slog.String("article", src.Identity.String()))
			continue
		}
		disk[src.Identity] = version
	}
	return disk, keys, nil
}

// apply runs removals fully in parallel and inserts with bounded
// parallelism. Neither group returns errors; failures land in the report.
func (e *Engine) apply(ctx context.Context, logger *slog.Logger, plan reconcile.Plan, report *Report) {
	var removals errgroup.Group
	for _, r := range plan.Remove {
		removals.Go(func() error {
			e.remove(ctx, logger, r, report)
			return nil
		})
	}

	var inserts errgroup.Group
	inserts.SetLimit(e.workers)
	for _, k := range plan.Insert {
		if ctx.Err() != nil {
			break
		}
		inserts.Go(func() error {
			e.insert(ctx, logger, k, report)
			return nil
		})
	}

	_ = removals.Wait()
	_ = inserts.Wait()
}

func (e *Engine) remove(ctx context.Context, logger *slog.Logger, r reconcile.Removal, report *Report) {
	if err := e.store.Remove(ctx, r.Key); err != nil {
		logger.Warn("sync: remove failed",
			slog.String("key", r.Key),
			slog.String("reason", string(r.Reason)),
			slog.String("error", err.Error()))
		report.addFailure(err)
		return
	}
	logger.Info("sync: removed", slog.String("key", r.Key), slog.String("reason", string(r.Reason)))
	report.addRemoved(r.Key)
	if e.onEvent != nil {
		e.onEvent(EventRemoved, r.Key)
	}
}

func (e *Engine) insert(ctx context.Context, logger *slog.Logger, k blogkey.Key, report *Report) {
	if ctx.Err() != nil {
		return
	}
	id := k.Identity()
	key := k.String()

	data, err := e.src.Read(id)
	if err != nil {
		logger.Warn("sync: read failed", slog.String("article", id.String()), slog.String("error", err.Error()))
		report.addFailure(fmt.Errorf("load %s: %w", id, err))
		return
	}
	res, err := e.parser.Parse(id, data)
	if err != nil {
		logger.Warn("sync: article skipped", slog.String("article", id.String()), slog.String("error", err.Error()))
		report.addFailure(err)
		return
	}

	a := &models.Article{
		Category: id.Category,
		Slug:     id.Slug,
		Version:  k.Version,
		Title:    res.Title,
		Excerpt:  res.Excerpt,
		Body:     res.Body,
		Checksum: res.Checksum,
		Modified: models.VersionTime(k.Version),
	}
	if err := e.store.Save(ctx, key, a); err != nil {
		logger.Warn("sync: save failed", slog.String("key", key), slog.String("error", err.Error()))
		report.addFailure(err)
		return
	}
	logger.Info("sync: saved", slog.String("key", key), slog.String("title", res.Title))
	report.addSaved(key)
	if e.onEvent != nil {
		e.onEvent(EventSaved, key)
	}
}
