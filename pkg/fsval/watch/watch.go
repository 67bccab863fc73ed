// Package watch reports filesystem changes under a target directory in
// debounced batches, so callers can re-validate once a burst of writes
// settles.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/fsval/pkg/fsval/logging"
)

var logger = logging.Get("watch")

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// ErrNotDirectory is returned when the watch root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Change is one changed path, relative to the watch root with forward
// slashes. Op accumulates every operation seen for the path in the batch.
type Change struct {
	Path string
	Op   fsnotify.Op
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
}

// Option is a functional option for New.
type Option func(*Options)

// WithDebounce sets the quiet period before a batch is delivered. Values
// below 1 keep the default.
func WithDebounce(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Debounce = d
		}
	}
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	paths  map[string]bool
	closed bool
}

// New creates a Watcher on root and every directory below it. Symlinks are
// not followed.
func New(root string, opts ...Option) (*Watcher, error) {
	o := Options{Debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		root:     absRoot,
		debounce: o.Debounce,
		watcher:  fsw,
		paths:    make(map[string]bool),
	}
	if err := w.addTree(absRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watch root.
func (w *Watcher) Root() string {
	return w.root
}

// Watched returns the number of directories being watched.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			return nil //nolint:nilerr // Skip unreadable subtrees
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.IsDir() {
			return nil
		}
		return w.addWatch(path)
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

func (w *Watcher) removeTree(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

// Run delivers batches of changes to onBatch until ctx is cancelled or the
// watcher is closed. A batch is delivered once no event has arrived for the
// debounce period. onBatch runs on the Run goroutine.
func (w *Watcher) Run(ctx context.Context, onBatch func(ctx context.Context, changes []Change)) error {
	pending := make(map[string]fsnotify.Op)
	var timer *time.Timer
	var fire <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-fire:
			fire = nil
			if len(pending) == 0 {
				continue
			}
			batch := flatten(pending)
			pending = make(map[string]fsnotify.Op)
			logger.Debug("change batch", "changes", len(batch))
			onBatch(ctx, batch)

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			rel, ok := w.handleEvent(event)
			if !ok {
				continue
			}
			pending[rel] |= event.Op

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

// handleEvent keeps the watch set in step with directory creation and
// removal and returns the root-relative path of the event.
func (w *Watcher) handleEvent(event fsnotify.Event) (string, bool) {
	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.removeTree(event.Name)
	}

	if event.Op == fsnotify.Chmod {
		return "", false
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func flatten(pending map[string]fsnotify.Op) []Change {
	changes := make([]Change, 0, len(pending))
	for path, op := range pending {
		changes = append(changes, Change{Path: path, Op: op})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
