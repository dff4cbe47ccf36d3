// Package watch manages directory subscriptions: lifecycle (start/stop),
// the two-phase indexing job (fast scan then bounded-concurrency
// FileIndexer dispatch), filesystem-event wiring to incremental
// add/change/unlink handling, and progress streaming via
// internal/progressbus.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsgraph/indexer/internal/fileindexer"
	"github.com/fsgraph/indexer/internal/graphstore"
	"github.com/fsgraph/indexer/internal/ids"
	"github.com/fsgraph/indexer/internal/pathmatch"
	"github.com/fsgraph/indexer/internal/progressbus"
	"github.com/fsgraph/indexer/internal/scanner"
	"github.com/fsgraph/indexer/internal/watcher"
)

// GraphStore is the subset of *graphstore.Store the Manager writes
// subscription/file records through, beyond what fileindexer.GraphStore
// already covers.
type GraphStore interface {
	fileindexer.GraphStore
	UpsertSubscription(ctx context.Context, sub *graphstore.Subscription) error
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	UpdateSubscriptionCounters(ctx context.Context, subscriptionID string, filesIndexed int) error
	DeleteFile(ctx context.Context, fileID string) error
	ListWatchedFiles(ctx context.Context, subscriptionID string) (map[string]string, error)
}

// Config holds the Manager's per-phase concurrency knobs.
type Config struct {
	// ScanConcurrency bounds Phase 1's fast-skip lookups. Default 50.
	ScanConcurrency int
	// IndexConcurrency bounds Phase 2's concurrent FileIndexer calls.
	// Default 3.
	IndexConcurrency int
	// MaxConcurrentSubscriptions bounds how many subscriptions may run an
	// indexing job at once. Default 1, since embeddings often hit a single
	// backend.
	MaxConcurrentSubscriptions int
	// InterCallDelay is an optional pause between Phase 2 dispatches when
	// embeddings are enabled, protecting the embedding backend.
	InterCallDelay time.Duration
	// SensitiveOverrides re-admits files the built-in sensitive-filename
	// patterns would exclude; each entry is applied as a negation.
	SensitiveOverrides []string
}

// graphStoreTimeLayout mirrors graphstore's unexported timeLayout used to
// format File.ModTime for storage; GetFileMTime returns strings in this
// format.
const graphStoreTimeLayout = "2006-01-02T15:04:05.000Z"

// DefaultConfig returns the standard concurrency defaults.
func DefaultConfig() Config {
	return Config{
		ScanConcurrency:            scanner.DefaultScanConcurrency,
		IndexConcurrency:           3,
		MaxConcurrentSubscriptions: 1,
	}
}

// SubscribeRequest describes a new subscription.
type SubscribeRequest struct {
	ID                 string
	Path               string
	Recursive          bool
	IgnorePatterns     []string
	DebounceWindow     time.Duration
	GenerateEmbeddings bool
}

// subscriptionState is one tracked subscription's live handle table,
// keyed in Manager.subs by the subscription's absolute root path.
type subscriptionState struct {
	sub       graphstore.Subscription
	watcher   *watcher.HybridWatcher
	cancel    context.CancelFunc
	watchDone chan struct{}
	stopOnce  sync.Once

	// indexCancel cancels only the currently running indexing job (Phase
	// 1+2), distinct from cancel which tears down the whole subscription
	// (watcher included). Set for the duration of runIndexingJob; guarded
	// by Manager.mu.
	indexCancel context.CancelFunc

	// ignoreContent is the subscription root's ignore file content as of
	// the last scan/reconciliation, used to diff against the new content
	// on an OpIgnoreFileChange event (the pattern-diff fast path).
	ignoreContent string
}

// Manager is the WatchManager.
type Manager struct {
	store   GraphStore
	indexer *fileindexer.Indexer
	bus     *progressbus.Bus
	cfg     Config

	mu   sync.Mutex
	subs map[string]*subscriptionState // keyed by absolute root path

	indexSem chan struct{} // size MaxConcurrentSubscriptions
}

// New builds a Manager. indexer performs Phase 2 dispatch; bus receives
// progress events for every subscription this Manager tracks.
func New(cfg Config, store GraphStore, indexer *fileindexer.Indexer, bus *progressbus.Bus) *Manager {
	if cfg.ScanConcurrency <= 0 {
		cfg.ScanConcurrency = scanner.DefaultScanConcurrency
	}
	if cfg.IndexConcurrency <= 0 {
		cfg.IndexConcurrency = 3
	}
	if cfg.MaxConcurrentSubscriptions <= 0 {
		cfg.MaxConcurrentSubscriptions = 1
	}
	return &Manager{
		store:    store,
		indexer:  indexer,
		bus:      bus,
		cfg:      cfg,
		subs:     make(map[string]*subscriptionState),
		indexSem: make(chan struct{}, cfg.MaxConcurrentSubscriptions),
	}
}

// Subscribe starts watching req.Path: rejects duplicates, starts the
// filesystem watcher, wires its events, and enqueues an initial full-tree
// indexing job.
func (m *Manager) Subscribe(ctx context.Context, req SubscribeRequest) error {
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		return fmt.Errorf("resolve subscription path: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.subs[absPath]; exists {
		m.mu.Unlock()
		return fmt.Errorf("subscription already active for %s", absPath)
	}

	opts := watcher.DefaultOptions()
	if req.DebounceWindow > 0 {
		opts.DebounceWindow = req.DebounceWindow
	}
	opts.IgnorePatterns = req.IgnorePatterns

	hw, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("create watcher: %w", err)
	}

	state := &subscriptionState{
		sub: graphstore.Subscription{
			ID:                 req.ID,
			RootPath:           absPath,
			Recursive:          req.Recursive,
			ExcludePatterns:    req.IgnorePatterns,
			DebounceWindow:     opts.DebounceWindow,
			GenerateEmbeddings: req.GenerateEmbeddings,
			Status:             graphstore.SubscriptionQueued,
		},
		watcher:   hw,
		watchDone: make(chan struct{}),
	}
	m.subs[absPath] = state
	m.mu.Unlock()

	if err := m.store.UpsertSubscription(ctx, &state.sub); err != nil {
		m.mu.Lock()
		delete(m.subs, absPath)
		m.mu.Unlock()
		return fmt.Errorf("persist subscription: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	state.cancel = cancel

	// HybridWatcher.Start blocks for the watcher's lifetime (its fsnotify/
	// polling loop), so it must run on its own goroutine; startErrCh
	// surfaces an immediate setup failure (e.g. addRecursive failing)
	// back to the caller without waiting for the whole lifetime.
	startErrCh := make(chan error, 1)
	go func() {
		startErrCh <- hw.Start(watchCtx, absPath)
	}()

	select {
	case err := <-startErrCh:
		cancel()
		m.mu.Lock()
		delete(m.subs, absPath)
		m.mu.Unlock()
		return fmt.Errorf("start watcher: %w", err)
	case <-time.After(200 * time.Millisecond):
	}

	go m.pumpEvents(watchCtx, state)
	go func() {
		defer close(state.watchDone)
		m.runIndexingJob(watchCtx, state)
	}()

	return nil
}

// AbortIndexing cancels path's currently running indexing job, if any,
// without stopping the filesystem watcher or tearing down the
// subscription itself. Once AbortIndexing returns true, no new FileIndexer
// invocations begin for the subscription; workers check ctx at file
// boundaries, so already-dispatched calls are allowed to finish.
// AbortIndexing does not wait for them; call StopWatch to await full
// drain. Returns false if no job is currently running.
func (m *Manager) AbortIndexing(path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolve subscription path: %w", err)
	}

	m.mu.Lock()
	state, ok := m.subs[absPath]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("no active subscription for %s", absPath)
	}
	cancel := state.indexCancel
	m.mu.Unlock()

	if cancel == nil {
		return false, nil
	}
	cancel()
	return true, nil
}

// StopWatch aborts any in-flight indexing job for path, awaits its
// finalisation (cancellation is treated as success), then closes the
// watcher.
func (m *Manager) StopWatch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve subscription path: %w", err)
	}

	m.mu.Lock()
	state, ok := m.subs[absPath]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("no active subscription for %s", absPath)
	}
	delete(m.subs, absPath)
	m.mu.Unlock()

	state.stopOnce.Do(func() {
		if state.cancel != nil {
			state.cancel()
		}
	})

	<-state.watchDone
	return state.watcher.Stop()
}

// Shutdown stops every tracked subscription's watcher and awaits its
// in-flight indexing job's cooperative cancellation, used by
// internal/lifecycle to sequence a graceful process exit. Subscriptions
// that fail to stop are reported but do not block the others from
// stopping.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	paths := make([]string, 0, len(m.subs))
	for p := range m.subs {
		paths = append(paths, p)
	}
	m.mu.Unlock()

	var errs []error
	for _, p := range paths {
		done := make(chan error, 1)
		go func(path string) { done <- m.StopWatch(path) }(p)

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("stop %s: %w", p, err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("stop %s: %w", p, ctx.Err()))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %d subscription(s) failed to stop cleanly: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// ListSubscriptions returns the subscriptions currently tracked, for
// status reporting.
func (m *Manager) ListSubscriptions() []graphstore.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]graphstore.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s.sub)
	}
	return out
}

// GetProgress returns a point-in-time snapshot for path, if known.
func (m *Manager) GetProgress(path string) (progressbus.Event, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return progressbus.Event{}, false
	}
	return m.bus.Snapshot(absPath)
}

// GetAllProgress returns every still-visible subscription's latest event.
func (m *Manager) GetAllProgress() map[string]progressbus.Event {
	return m.bus.AllSnapshots()
}

// OnProgress registers cb for every progress event across all
// subscriptions tracked by this Manager and returns an unsubscribe
// function.
func (m *Manager) OnProgress(cb progressbus.Callback) (unsubscribe func()) {
	return m.bus.OnProgress(cb)
}

// runIndexingJob runs the two-phase indexing job for state, guarded by
// the max-concurrent-subscriptions semaphore, then updates the
// subscription's persisted counters.
func (m *Manager) runIndexingJob(parentCtx context.Context, state *subscriptionState) {
	select {
	case m.indexSem <- struct{}{}:
	case <-parentCtx.Done():
		m.publish(state, progressbus.StatusCancelled, "", 0, 0, 0, 0, "")
		return
	}
	defer func() { <-m.indexSem }()

	ctx, cancel := context.WithCancel(parentCtx)
	m.mu.Lock()
	state.indexCancel = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		state.indexCancel = nil
		m.mu.Unlock()
	}()

	m.publish(state, progressbus.StatusIndexing, "", 0, 0, 0, 0, "")

	matcher := pathmatch.New()
	for _, p := range m.cfg.SensitiveOverrides {
		matcher.AddPattern("!" + p)
	}
	for _, p := range state.sub.ExcludePatterns {
		matcher.AddPattern(p)
	}
	ignorePath := filepath.Join(state.sub.RootPath, pathmatch.DefaultIgnoreFileName)
	_ = matcher.LoadIgnoreFile(ignorePath, "")
	if content, err := os.ReadFile(ignorePath); err == nil {
		m.mu.Lock()
		state.ignoreContent = string(content)
		m.mu.Unlock()
	}

	outcome, err := scanner.Walk(ctx, state.sub.RootPath, matcher, m.cfg.ScanConcurrency, func(ctx context.Context, absPath, relPath string, modTime int64) (bool, error) {
		fileID := ids.FileID(absPath)
		storedMTime, exists, err := m.store.GetFileMTime(ctx, fileID)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, nil
		}
		ts, err := time.Parse(graphStoreTimeLayout, storedMTime)
		if err != nil {
			return false, nil
		}
		// Stored mtimes carry millisecond precision; truncate the
		// filesystem mtime to match.
		return !ts.Before(time.Unix(0, modTime).UTC().Truncate(time.Millisecond)), nil
	})
	if err != nil {
		m.publish(state, progressbus.StatusError, "", 0, 0, 0, 0, err.Error())
		m.mu.Lock()
		count := state.sub.FilesIndexed
		m.mu.Unlock()
		_ = m.store.UpdateSubscriptionCounters(ctx, state.sub.ID, count)
		return
	}

	indexed, skipped, errored := 0, outcome.FastSkipped, 0
	total := len(outcome.ToIndex) + outcome.FastSkipped

	sem := make(chan struct{}, m.cfg.IndexConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, rel := range outcome.ToIndex {
		select {
		case <-ctx.Done():
			goto cancelled
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(rel string) {
			defer wg.Done()
			defer func() { <-sem }()

			absPath := filepath.Join(state.sub.RootPath, rel)
			res, err := m.indexer.IndexFile(ctx, fileindexer.Request{
				AbsPath:            absPath,
				RelPath:            rel,
				SubscriptionID:     state.sub.ID,
				SubscriptionRoot:   state.sub.RootPath,
				GenerateEmbeddings: state.sub.GenerateEmbeddings,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				errored++
				slog.Warn("file indexing failed", slog.String("path", absPath), slog.String("error", err.Error()))
			case res.Outcome == fileindexer.OutcomeErrored:
				errored++
			case res.Outcome == fileindexer.OutcomeSkipped:
				skipped++
			default:
				indexed++
			}
			m.publish(state, progressbus.StatusIndexing, rel, total, indexed, skipped, errored, "")
		}(rel)

		if state.sub.GenerateEmbeddings && m.cfg.InterCallDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(m.cfg.InterCallDelay):
			}
		}
	}
	wg.Wait()

	m.reconcileDeletions(ctx, state)

	m.mu.Lock()
	state.sub.FilesIndexed = indexed + skipped
	m.mu.Unlock()
	_ = m.store.UpdateSubscriptionCounters(ctx, state.sub.ID, indexed+skipped)
	m.publish(state, progressbus.StatusCompleted, "", total, indexed, skipped, errored, "")
	return

cancelled:
	wg.Wait()
	m.mu.Lock()
	state.sub.FilesIndexed = indexed + skipped
	m.mu.Unlock()
	_ = m.store.UpdateSubscriptionCounters(ctx, state.sub.ID, indexed+skipped)
	m.publish(state, progressbus.StatusCancelled, "", total, indexed, skipped, errored, "")
}

// reconcileDeletions removes File records whose paths no longer exist on
// disk, catching unlinks that happened while no watcher was running (e.g.
// between daemon runs).
func (m *Manager) reconcileDeletions(ctx context.Context, state *subscriptionState) {
	watched, err := m.store.ListWatchedFiles(ctx, state.sub.ID)
	if err != nil {
		slog.Warn("deletion reconciliation skipped", slog.String("subscription", state.sub.ID), slog.String("error", err.Error()))
		return
	}
	for fileID, path := range watched {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := os.Lstat(path); err == nil || !os.IsNotExist(err) {
			continue
		}
		if err := m.store.DeleteFile(ctx, fileID); err != nil {
			slog.Warn("stale file delete failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
}

// pumpEvents wires the watcher's batched fs events to incremental
// add/change/unlink handling and ignore-file reconciliation.
func (m *Manager) pumpEvents(ctx context.Context, state *subscriptionState) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-state.watcher.Events():
			if !ok {
				return
			}
			for _, ev := range batch {
				m.handleEvent(ctx, state, ev)
			}
		case err, ok := <-state.watcher.Errors():
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("subscription", state.sub.ID), slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) handleEvent(ctx context.Context, state *subscriptionState, ev watcher.FileEvent) {
	if ev.IsDir {
		return
	}

	absPath := filepath.Join(state.sub.RootPath, ev.Path)

	switch ev.Operation {
	case watcher.OpCreate, watcher.OpModify, watcher.OpRename:
		res, err := m.indexer.IndexFile(ctx, fileindexer.Request{
			AbsPath:            absPath,
			RelPath:            ev.Path,
			SubscriptionID:     state.sub.ID,
			SubscriptionRoot:   state.sub.RootPath,
			GenerateEmbeddings: state.sub.GenerateEmbeddings,
		})
		if err != nil {
			slog.Warn("incremental index failed", slog.String("path", absPath), slog.String("error", err.Error()))
			return
		}
		if res.Outcome == fileindexer.OutcomeIndexed {
			m.mu.Lock()
			state.sub.FilesIndexed++
			count := state.sub.FilesIndexed
			m.mu.Unlock()
			_ = m.store.UpdateSubscriptionCounters(ctx, state.sub.ID, count)
		}

	case watcher.OpDelete:
		// unlink is best-effort.
		if err := m.store.DeleteFile(ctx, ids.FileID(absPath)); err != nil {
			slog.Warn("file delete failed", slog.String("path", absPath), slog.String("error", err.Error()))
		}

	case watcher.OpIgnoreFileChange:
		m.reconcileIgnoreFileChange(ctx, state)
	}
}

// reconcileIgnoreFileChange handles an ignore-file edit. When the diff
// against the previously loaded content only adds patterns (nothing was
// newly unignored), it takes the fast path: walk the tree once and drop
// only the files that newly match an added pattern, without touching
// anything else. Any other diff shape (removed patterns, or an unreadable
// ignore file) falls back to a full rescan, since discovering newly
// unignored files requires rewalking the tree anyway.
func (m *Manager) reconcileIgnoreFileChange(ctx context.Context, state *subscriptionState) {
	ignorePath := filepath.Join(state.sub.RootPath, pathmatch.DefaultIgnoreFileName)
	newContent, err := os.ReadFile(ignorePath)
	if err != nil {
		go m.runIndexingJob(ctx, state)
		return
	}

	m.mu.Lock()
	oldContent := state.ignoreContent
	state.ignoreContent = string(newContent)
	m.mu.Unlock()

	added, removed := pathmatch.DiffPatterns(oldContent, string(newContent))
	if len(removed) > 0 || len(added) == 0 {
		go m.runIndexingJob(ctx, state)
		return
	}

	root := state.sub.RootPath
	err = filepath.WalkDir(root, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if absPath == root || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, absPath)
		if err != nil {
			return nil
		}
		if pathmatch.MatchesAnyPattern(filepath.ToSlash(rel), added) {
			if err := m.store.DeleteFile(ctx, ids.FileID(absPath)); err != nil {
				slog.Warn("ignore-file reconciliation: delete failed", slog.String("path", absPath), slog.String("error", err.Error()))
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("ignore-file reconciliation: fast path walk failed, falling back to full rescan", slog.String("subscription", state.sub.ID), slog.String("error", err.Error()))
		go m.runIndexingJob(ctx, state)
	}
}

func (m *Manager) publish(state *subscriptionState, status progressbus.Status, currentFile string, total, indexed, skipped, errored int, errMsg string) {
	m.mu.Lock()
	state.sub.Status = graphstore.SubscriptionStatus(status)
	m.mu.Unlock()

	m.bus.Publish(progressbus.Event{
		SubscriptionPath: state.sub.RootPath,
		Status:           status,
		CurrentFile:      currentFile,
		FilesTotal:       total,
		FilesIndexed:     indexed,
		FilesSkipped:     skipped,
		FilesErrored:     errored,
		ErrorMessage:     errMsg,
	})
}
