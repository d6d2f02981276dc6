// Package watcher turns fsnotify notifications for a directory tree into
// change events with paths relative to the tree root.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bashhack/gitwatch/internal/change"
	gitwatchErrors "github.com/bashhack/gitwatch/internal/errors"
	"github.com/bashhack/gitwatch/internal/logger"
)

const (
	eventBuffer = 256
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
)

var errRootRemoved = errors.New("watched directory was removed")

// Watcher observes a directory tree recursively. Directories for which
// skipDir returns true (and .git) are not descended into.
type Watcher struct {
	root    string
	skipDir func(rel string) bool
	logger  logger.Logger
	events  chan change.Event

	fw   *fsnotify.Watcher
	dirs map[string]bool

	minBackoff time.Duration
	maxBackoff time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithSkipDir sets the directory filter. rel is slash-separated and
// relative to the root.
func WithSkipDir(skip func(rel string) bool) Option {
	return func(w *Watcher) { w.skipDir = skip }
}

// WithBackoff overrides the restart backoff bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(w *Watcher) {
		w.minBackoff = min
		w.maxBackoff = max
	}
}

// New starts watching root. Failure here is fatal for the caller and is
// reported as a *errors.WatchError with Initial set.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, gitwatchErrors.NewWatchError(root, true, err)
	}

	w := &Watcher{
		root:       abs,
		skipDir:    func(string) bool { return false },
		logger:     logger.NewNop(),
		events:     make(chan change.Event, eventBuffer),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.open(); err != nil {
		return nil, gitwatchErrors.NewWatchError(abs, true, err)
	}
	return w, nil
}

// Events delivers observed changes. It is closed when Run returns.
func (w *Watcher) Events() <-chan change.Event {
	return w.events
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Run forwards events until ctx is cancelled. If the underlying watch breaks
// it is rebuilt with exponential backoff; Run only returns on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.closeWatcher()

	backoff := w.minBackoff
	for {
		err := w.loop(ctx)
		if ctx.Err() != nil {
			return nil
		}

		w.logger.WarningToUser("File watcher stopped (%v); restarting in %s", err, backoff)
		for {
			if !sleep(ctx, backoff) {
				return nil
			}
			w.closeWatcher()
			if err := w.open(); err != nil {
				w.logger.Warning("Restarting file watcher failed: %v", gitwatchErrors.NewWatchError(w.root, false, err))
				backoff = min(backoff*2, w.maxBackoff)
				continue
			}
			break
		}
		w.logger.InfoToUser("File watcher restarted on %s", w.root)
		backoff = w.minBackoff
	}
}

func (w *Watcher) open() error {
	info, err := os.Stat(w.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return gitwatchErrors.Errorf("%s is not a directory", w.root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fw = fw
	w.dirs = make(map[string]bool)

	if err := w.addTree(w.root, nil); err != nil {
		w.closeWatcher()
		return err
	}
	return nil
}

func (w *Watcher) closeWatcher() {
	if w.fw != nil {
		_ = w.fw.Close()
		w.fw = nil
	}
}

// addTree watches dir and every non-skipped directory below it. When found
// is non-nil it receives the files discovered, which is how files created
// together with a new directory are reported.
func (w *Watcher) addTree(dir string, found func(path string)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.logger.Warning("Skipping %s: %v", p, err)
			return nil
		}

		if !d.IsDir() {
			if found != nil && d.Type().IsRegular() {
				found(p)
			}
			return nil
		}

		if p != w.root && w.skip(p) {
			return filepath.SkipDir
		}
		if err := w.fw.Add(p); err != nil {
			if p == dir {
				return err
			}
			w.logger.Warning("Failed to watch %s: %v", p, err)
			return nil
		}
		w.dirs[p] = true
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) error {
	fw := w.fw
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if err := w.handle(ctx, ev); err != nil {
				return err
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.WarningToUser("File watcher queue overflowed; some changes may be picked up late")
				continue
			}
			w.logger.Warning("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) error {
	if ev.Name == w.root {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			return errRootRemoved
		}
		return nil
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// Gone again before we looked.
			return nil
		}
		if info.IsDir() {
			if w.skip(ev.Name) {
				return nil
			}
			return w.addNewDir(ctx, ev.Name)
		}
		w.emit(ctx, ev.Name, change.Created)

	case ev.Has(fsnotify.Write):
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			return nil
		}
		w.emit(ctx, ev.Name, change.Modified)

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(w.dirs, ev.Name)
		w.emit(ctx, ev.Name, change.Deleted)
	}
	return nil
}

func (w *Watcher) addNewDir(ctx context.Context, dir string) error {
	err := w.addTree(dir, func(p string) {
		w.emit(ctx, p, change.Created)
	})
	if err != nil {
		w.logger.Warning("Failed to watch new directory %s: %v", dir, err)
	}
	return nil
}

func (w *Watcher) emit(ctx context.Context, abs string, kind change.Kind) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return
	}
	ev := change.Event{Path: filepath.ToSlash(rel), Kind: kind, Timestamp: time.Now()}

	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

func (w *Watcher) skip(abs string) bool {
	if filepath.Base(abs) == ".git" {
		return true
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return false
	}
	return w.skipDir(filepath.ToSlash(rel))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
