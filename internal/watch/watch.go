// Package watch observes a sync workspace and triggers pushes once local
// markdown edits go quiet. Events are debounced into batches keyed by
// path, so an editor writing a file several times in a burst produces one
// push run.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
)

// DefaultDebounce is how long a file must stay quiet before its batch
// is pushed.
const DefaultDebounce = 2 * time.Second

// PushFunc runs one push over the workspace. The batch lists the
// workspace-relative paths whose events settled.
type PushFunc func(ctx context.Context, paths []string) error

// Config tunes a Watcher.
type Config struct {
	// Root is the workspace directory to observe.
	Root string
	// Debounce is the quiet period before a batch runs. Zero takes
	// DefaultDebounce.
	Debounce time.Duration
	// Throttle caps how often push runs fire. Nil means unthrottled.
	Throttle *resilience.TokenBucket
	// Push receives settled batches.
	Push PushFunc
	// Logger receives watcher activity. Nil takes slog.Default.
	Logger *slog.Logger
}

// Watcher tails filesystem events under a workspace root and drains the
// settled ones into push runs.
type Watcher struct {
	root     string
	debounce time.Duration
	throttle *resilience.TokenBucket
	push     PushFunc
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	mu      stdsync.Mutex
	pending map[string]time.Time
	running bool
	cancel  context.CancelFunc
	wg      stdsync.WaitGroup
}

// New builds a Watcher over cfg.Root. Start begins observation.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watch: root directory required")
	}
	if cfg.Push == nil {
		return nil, errors.New("watch: push callback required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     cfg.Root,
		debounce: cfg.Debounce,
		throttle: cfg.Throttle,
		push:     cfg.Push,
		logger:   cfg.Logger,
		fsw:      fsw,
		pending:  make(map[string]time.Time),
	}, nil
}

// Start registers the directory tree and spawns the event and drain
// loops. It returns once observation is active; cancel ctx or call Stop
// to end it.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watch: watcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		w.Stop()
		return err
	}

	w.wg.Add(2)
	go w.readEvents(runCtx)
	go w.drainPending(runCtx)

	w.logger.Info("watching workspace",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce))
	return nil
}

// Stop ends observation and waits for in-flight work to finish. Safe to
// call on a watcher that never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// addTree registers dir and every non-hidden directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// readEvents converts raw filesystem events into pending entries.
func (w *Watcher) readEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	// Directories created while watching join the watch set, so a page
	// tree growing under the editor keeps reporting.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("watching new directory failed",
					slog.String("path", event.Name),
					slog.String("error", err.Error()))
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".md") {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}

	w.mu.Lock()
	w.pending[filepath.ToSlash(rel)] = time.Now()
	w.mu.Unlock()
}

// drainPending flushes settled batches on a fixed tick.
func (w *Watcher) drainPending(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	batch := w.takeSettled()
	if len(batch) == 0 {
		return
	}

	if w.throttle != nil {
		if err := w.throttle.Take(ctx); err != nil {
			return
		}
	}

	w.logger.Info("pushing settled changes", slog.Int("files", len(batch)))
	if err := w.push(ctx, batch); err != nil {
		w.logger.Error("push failed", slog.String("error", err.Error()))
	}
}

// takeSettled removes and returns every pending path whose last event is
// older than the debounce window.
func (w *Watcher) takeSettled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var batch []string
	for rel, queuedAt := range w.pending {
		if now.Sub(queuedAt) < w.debounce {
			continue
		}
		batch = append(batch, rel)
		delete(w.pending, rel)
	}
	sort.Strings(batch)
	return batch
}
