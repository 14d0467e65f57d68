// Package watcher triggers rescans when Steam changes a library.
//
// Each library's steamapps directory (manifests, libraryfolders.vdf) and its
// compatdata directory (prefix creation and removal) are watched
// non-recursively. Bursts of events, such as Steam rewriting manifests
// during an update, are debounced into a single callback.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/prefixhq/pkg/prefixhq/logging"
	"github.com/jamesainslie/prefixhq/pkg/prefixhq/types"
)

// DefaultDebounce is the quiet period before changes are reported.
const DefaultDebounce = 2 * time.Second

var manifestName = regexp.MustCompile(`^appmanifest_\d+\.acf$`)

// Change is a debounced batch of relevant filesystem events.
type Change struct {
	// Paths lists the changed files and prefix directories, sorted.
	Paths []string
}

// Watcher watches library directories for changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.Logger

	mu     sync.RWMutex
	paths  map[string]bool
	closed bool
}

// New creates a new Watcher. A non-positive debounce uses DefaultDebounce.
func New(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  fsw,
		debounce: debounce,
		logger:   logging.Get("watcher"),
		paths:    make(map[string]bool),
	}, nil
}

// WatchLibraries watches every library. Failures for individual libraries
// are joined; the others are still watched.
func (w *Watcher) WatchLibraries(libs []types.LibraryRoot) error {
	var errs []error
	for _, lib := range libs {
		if err := w.WatchLibrary(lib); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WatchLibrary watches lib's steamapps and, when present, its compatdata.
// A compatdata directory created later is picked up from steamapps events.
func (w *Watcher) WatchLibrary(lib types.LibraryRoot) error {
	if err := w.addWatch(lib.SteamApps()); err != nil {
		return err
	}
	if info, err := os.Stat(lib.CompatData()); err == nil && info.IsDir() {
		return w.addWatch(lib.CompatData())
	}
	return nil
}

// addWatch adds a single directory to the watch list.
func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	// Already watching this path
	if w.paths[path] {
		return nil
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}

	w.paths[path] = true
	return nil
}

// Unwatch stops watching a directory.
func (w *Watcher) Unwatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || !w.paths[path] {
		return
	}
	_ = w.watcher.Remove(path)
	delete(w.paths, path)
}

// Paths returns the watched directories, sorted.
func (w *Watcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Run starts the event loop. It blocks until the context is cancelled or
// the watcher is closed. onChange is called from the loop goroutine once
// per debounced batch of relevant events.
func (w *Watcher) Run(ctx context.Context, onChange func(Change)) {
	var (
		pending = make(map[string]bool)
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.handleEvent(event) {
				continue
			}
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			change := Change{Paths: make([]string, 0, len(pending))}
			for p := range pending {
				change.Paths = append(change.Paths, p)
			}
			slices.Sort(change.Paths)
			clear(pending)
			w.logger.Debug("library change", "paths", len(change.Paths))
			if onChange != nil {
				onChange(change)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleEvent keeps watches current and reports whether the event can
// change the reconciled view.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	dir := filepath.Dir(event.Name)
	base := filepath.Base(event.Name)

	w.mu.RLock()
	watched := w.paths[dir]
	w.mu.RUnlock()
	if !watched {
		return false
	}

	switch {
	case filepath.Base(dir) == "compatdata":
		_, err := types.ParseAppID(base)
		return err == nil
	case base == "compatdata":
		if event.Op.Has(fsnotify.Create) {
			_ = w.addWatch(event.Name)
		} else if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
			w.Unwatch(event.Name)
		}
		return true
	case base == "libraryfolders.vdf":
		return true
	default:
		return manifestName.MatchString(base)
	}
}

// Close closes the watcher and releases resources.
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
