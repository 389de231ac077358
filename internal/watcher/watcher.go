// Package watcher implements the workspace filesystem watcher: recursive
// fsnotify watching with a per-path debounce map and ticker-driven flush,
// grounded directly on the teacher's MangleWatcher (internal/core/
// mangle_watcher.go in the source repo this was adapted from). Generalized
// from a single fixed directory watching only *.mg files into recursive,
// include/exclude-filtered watching of an entire workspace, and from
// Mangle-rule validation/repair into reindex-triggering plus evidence
// recording.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/librarian-dev/librarian/internal/ledger"
	"github.com/librarian-dev/librarian/internal/logging"
	"github.com/librarian-dev/librarian/internal/types"
)

// ChangeKind classifies a settled filesystem event.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
)

// Change is one settled, debounced filesystem event handed to registered
// handlers.
type Change struct {
	Path string
	Kind ChangeKind
	At   time.Time
}

// Handler reacts to a batch of settled changes. A handler that panics is
// recovered and logged; its error does not stop the watch loop or other
// handlers (handler errors are logged and dropped, not propagated).
type Handler func(ctx context.Context, changes []Change) error

// Options configures a Watcher.
type Options struct {
	Workspace        string
	Include          []string
	Exclude          []string
	DebounceInterval time.Duration
}

// DefaultOptions returns sane defaults for Options.
func DefaultOptions(workspace string) Options {
	return Options{
		Workspace:        workspace,
		Include:          []string{"**/*"},
		Exclude:          []string{".git/**", ".librarian/**", "node_modules/**", "vendor/**"},
		DebounceInterval: 100 * time.Millisecond,
	}
}

// Watcher recursively watches a workspace for file changes, debounces rapid
// successive events per path, and dispatches settled changes to registered
// handlers plus a file_changed entry per change in the evidence ledger.
type Watcher struct {
	mu          sync.Mutex
	opts        Options
	fsw         *fsnotify.Watcher
	ledger      *ledger.Ledger
	knownFiles  map[string]bool
	debounceMap map[string]pendingChange
	handlers    []Handler
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

type pendingChange struct {
	kind ChangeKind
	at   time.Time
}

// Stats tracks watcher activity, exposed for `librarian status`/`doctor`.
type Stats struct {
	Created       int
	Modified      int
	Deleted       int
	HandlerRuns   int
	HandlerErrors int
	LastEventPath string
	LastEventTime time.Time
}

// New constructs a Watcher over an already-open Ledger. knownFiles seeds the
// create/modify classification: a path not already known is classified
// Created on its first settled event, otherwise Modified.
func New(opts Options, led *ledger.Ledger, knownFiles []string) (*Watcher, error) {
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = 100 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(knownFiles))
	for _, f := range knownFiles {
		known[f] = true
	}
	return &Watcher{
		opts:        opts,
		fsw:         fsw,
		ledger:      led,
		knownFiles:  known,
		debounceMap: make(map[string]pendingChange),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// OnChange registers a handler invoked for every batch of settled changes,
// in registration order. Typically the Indexer's Reindex is registered here.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start begins watching the workspace recursively. Non-blocking; the watch
// loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs, err := w.discoverDirs()
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := w.fsw.Add(d); err != nil {
			logging.WatcherWarn("failed to watch directory %s: %v", d, err)
		}
	}
	logging.Watcher("watching %d directories under %s", len(dirs), w.opts.Workspace)

	go w.run(ctx)
	return nil
}

// Stop halts the watch loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		logging.WatcherError("error closing fsnotify watcher: %v", err)
	}
	logging.Watcher("stopped")
}

// IsWatching reports whether the watch loop is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// GetStats returns a snapshot of watcher activity counters.
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.opts.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			logging.WatcherError("fsnotify error: %v", err)
		case <-ticker.C:
			w.flushSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.opts.Workspace, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !matchesAny(rel+"/", w.opts.Exclude) {
				if err := w.fsw.Add(event.Name); err != nil {
					logging.WatcherWarn("failed to watch new directory %s: %v", event.Name, err)
				}
			}
			return
		}
	}

	if matchesAny(rel, w.opts.Exclude) {
		return
	}
	if len(w.opts.Include) > 0 && !matchesAny(rel, w.opts.Include) {
		return
	}

	var kind ChangeKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = ChangeCreated
	case event.Op&fsnotify.Write != 0:
		kind = ChangeModified
	case event.Op&fsnotify.Remove != 0:
		kind = ChangeDeleted
	case event.Op&fsnotify.Rename != 0:
		kind = ChangeRenamed
	default:
		return
	}

	w.mu.Lock()
	if kind == ChangeCreated || kind == ChangeModified {
		if !w.knownFiles[rel] {
			kind = ChangeCreated
		} else {
			kind = ChangeModified
		}
	}
	w.debounceMap[rel] = pendingChange{kind: kind, at: time.Now()}
	w.mu.Unlock()
}

func (w *Watcher) flushSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []Change
	for path, pc := range w.debounceMap {
		if now.Sub(pc.at) >= w.opts.DebounceInterval {
			settled = append(settled, Change{Path: path, Kind: pc.kind, At: pc.at})
			delete(w.debounceMap, path)
		}
	}
	if len(settled) == 0 {
		w.mu.Unlock()
		return
	}
	for _, c := range settled {
		switch c.Kind {
		case ChangeCreated:
			w.stats.Created++
			w.knownFiles[c.Path] = true
		case ChangeModified:
			w.stats.Modified++
		case ChangeDeleted, ChangeRenamed:
			w.stats.Deleted++
			delete(w.knownFiles, c.Path)
		}
		w.stats.LastEventPath = c.Path
		w.stats.LastEventTime = c.At
	}
	handlers := append([]Handler(nil), w.handlers...)
	w.mu.Unlock()

	w.dispatch(ctx, handlers, settled)
	w.recordObservations(ctx, settled)
}

// dispatch runs every registered handler against the settled batch,
// recovering from a handler panic so one misbehaving handler (or a
// test-registered probe) never crashes the watch loop.
func (w *Watcher) dispatch(ctx context.Context, handlers []Handler, changes []Change) {
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.WatcherError("handler panic recovered: %v", r)
					w.mu.Lock()
					w.stats.HandlerErrors++
					w.mu.Unlock()
				}
			}()
			w.mu.Lock()
			w.stats.HandlerRuns++
			w.mu.Unlock()
			if err := h(ctx, changes); err != nil {
				logging.WatcherWarn("handler returned error: %v", err)
				w.mu.Lock()
				w.stats.HandlerErrors++
				w.mu.Unlock()
			}
		}()
	}
}

func (w *Watcher) recordObservations(ctx context.Context, changes []Change) {
	if w.ledger == nil {
		return
	}
	for _, c := range changes {
		_, err := w.ledger.Append(ctx, types.Evidence{
			Kind:       types.EvidenceFileChanged,
			Subject:    c.Path,
			Confidence: 1.0,
			Payload: map[string]interface{}{
				"changeKind": string(c.Kind),
				"observedAt": c.At.Format(time.RFC3339Nano),
			},
			Provenance: types.ProvenanceWet,
		})
		if err != nil {
			logging.WatcherWarn("failed to record observation for %s: %v", c.Path, err)
		}
	}
}

// discoverDirs walks the workspace collecting every directory not excluded,
// since fsnotify has no native recursive mode.
func (w *Watcher) discoverDirs() ([]string, error) {
	var dirs []string
	err := filepath.Walk(w.opts.Workspace, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.opts.Workspace, path)
		if relErr != nil {
			return nil
		}
		if rel == "." {
			dirs = append(dirs, path)
			return nil
		}
		if matchesAny(filepath.ToSlash(rel)+"/", w.opts.Exclude) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}

func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if globMatch(pattern, path) {
			return true
		}
	}
	return false
}

// globMatch mirrors internal/indexer's matcher: filepath.Match plus a
// leading/trailing "**/" depth-agnostic extension, kept duplicated rather
// than shared to avoid an indexer->watcher (or vice versa) package
// dependency neither otherwise needs.
func globMatch(pattern, path string) bool {
	if len(pattern) >= 3 && pattern[len(pattern)-3:] == "/**" {
		prefix := pattern[:len(pattern)-3]
		return path == prefix || (len(path) > len(prefix) && path[:len(prefix)+1] == prefix+"/")
	}
	if pattern == "**/*" {
		return true
	}
	if len(pattern) >= 3 && pattern[:3] == "**/" {
		suffix := pattern[3:]
		if ok, _ := filepath.Match(suffix, filepath.Base(path)); ok {
			return true
		}
		return len(path) > len(suffix) && path[len(path)-len(suffix)-1:] == "/"+suffix
	}
	ok, _ := filepath.Match(pattern, path)
	return ok
}
