package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for the event stream to go
// quiet before triggering a pass. Editors write in bursts; one pass per
// burst is enough because reconciliation re-detects everything from disk.
const DefaultDebounce = 500 * time.Millisecond

// watchedExtensions mirrors the extensions the scanner indexes.
var watchedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// TriggerFunc runs one reconciliation pass. Errors are logged, not fatal;
// the next event burst triggers again.
type TriggerFunc func(ctx context.Context) error

// Watcher converts filesystem notifications into debounced sync triggers
// for one project root. It carries no change detail: the scanner re-derives
// the change set from disk on every pass.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	trigger  TriggerFunc
	debounce time.Duration
	logger   *slog.Logger

	dirty    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the quiet window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a Watcher over root that calls trigger after each debounced
// burst of relevant events.
func New(root string, trigger TriggerFunc, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		watcher:  fsw,
		trigger:  trigger,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		dirty:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the root recursively and begins dispatching triggers. Both
// goroutines exit when Stop is called or the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop shuts the watcher down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// relevant reports whether an event path can affect the index.
func relevant(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return watchedExtensions[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// New directories join the watch set so nested creates are seen
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !strings.HasPrefix(filepath.Base(event.Name), ".") {
						_ = w.addRecursive(event.Name)
						w.markDirty()
					}
					continue
				}
			}

			if relevant(event.Name) {
				w.markDirty()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "root", w.root, "error", err)
		}
	}
}

// markDirty coalesces: one pending trigger is enough regardless of how many
// events arrive.
func (w *Watcher) markDirty() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.dirty:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.trigger(ctx); err != nil {
				w.logger.Warn("triggered sync failed", "root", w.root, "error", err)
			}
		}
	}
}
