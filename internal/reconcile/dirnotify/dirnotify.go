// Package dirnotify wraps github.com/rjeczalik/notify into per-sync
// "subtree dirty" hints, coalescing write/create/remove/rename bursts
// the way the teacher's file_watcher.go coalesces a single flat event
// stream — generalized here to one independent watch per sync root
// instead of one watch for the whole client (spec §4.3).
package dirnotify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	defaultDebounce = 50 * time.Millisecond
	eventBufferSize = 256
)

// Severity distinguishes hints the reconciler must act on before its
// next regularly scheduled pass (Immediate — e.g. the sync root itself
// moved or vanished) from ones that can wait for the next pass
// (Delayed — an ordinary write inside the tree), per spec §4.3's two
// notification queues.
type Severity int

const (
	Delayed Severity = iota
	Immediate
)

// DirtyHint reports that path (relative to a watched sync root) needs
// rescanning.
type DirtyHint struct {
	SyncID    string
	Path      string
	Severity  Severity
	Recursive bool
}

// Watcher manages one notify.Watch per registered sync root and fans
// their coalesced output into a single DirtyHint channel.
type Watcher struct {
	debounce time.Duration
	hints    chan DirtyHint

	mu    sync.Mutex
	roots map[string]*rootWatch
}

type rootWatch struct {
	syncID string
	path   string
	raw    chan notify.EventInfo
	cancel context.CancelFunc
	done   chan struct{}

	debounceMu  sync.Mutex
	pending     map[string]Severity
	timers      map[string]*time.Timer
}

// New builds a Watcher with no roots. Hints for a sync are delivered
// only once AddRoot has been called for it.
func New() *Watcher {
	return &Watcher{
		debounce: defaultDebounce,
		hints:    make(chan DirtyHint, eventBufferSize),
		roots:    make(map[string]*rootWatch),
	}
}

// SetDebounce overrides the default coalescing window.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Hints returns the channel DirtyHints are delivered on.
func (w *Watcher) Hints() <-chan DirtyHint { return w.hints }

// AddRoot starts watching root recursively on behalf of syncID. Each
// sync gets its own notify channel so RemoveRoot can tear one sync's
// watch down without disturbing the others sharing this Watcher.
func (w *Watcher) AddRoot(ctx context.Context, syncID, root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.roots[syncID]; exists {
		return fmt.Errorf("dirnotify: sync %q already has a watch", syncID)
	}

	raw := make(chan notify.EventInfo, eventBufferSize)
	if err := notify.Watch(root+"/...", raw, notify.All); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}

	rootCtx, cancel := context.WithCancel(ctx)
	rw := &rootWatch{
		syncID:  syncID,
		path:    root,
		raw:     raw,
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[string]Severity),
		timers:  make(map[string]*time.Timer),
	}
	w.roots[syncID] = rw

	go w.run(rootCtx, rw)
	return nil
}

// RemoveRoot stops watching syncID's root and flushes any pending
// debounced hint for it immediately.
func (w *Watcher) RemoveRoot(syncID string) {
	w.mu.Lock()
	rw, ok := w.roots[syncID]
	if ok {
		delete(w.roots, syncID)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	rw.cancel()
	notify.Stop(rw.raw)
	<-rw.done
}

// Close tears down every watched root.
func (w *Watcher) Close() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.roots))
	for id := range w.roots {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		w.RemoveRoot(id)
	}
}

func (w *Watcher) run(ctx context.Context, rw *rootWatch) {
	defer func() {
		rw.debounceMu.Lock()
		for path, timer := range rw.timers {
			timer.Stop()
			w.deliver(rw, path, rw.pending[path])
		}
		rw.debounceMu.Unlock()
		close(rw.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rw.raw:
			if !ok {
				return
			}
			w.debounceEvent(rw, ev)
		}
	}
}

func (w *Watcher) debounceEvent(rw *rootWatch, ev notify.EventInfo) {
	path := ev.Path()
	severity := severityOf(ev.Event())

	rw.debounceMu.Lock()
	defer rw.debounceMu.Unlock()

	if existing, ok := rw.pending[path]; !ok || severity > existing {
		rw.pending[path] = severity
	}

	if timer, exists := rw.timers[path]; exists {
		timer.Stop()
	}
	rw.timers[path] = time.AfterFunc(w.debounce, func() {
		rw.debounceMu.Lock()
		s := rw.pending[path]
		delete(rw.pending, path)
		delete(rw.timers, path)
		rw.debounceMu.Unlock()
		w.deliver(rw, path, s)
	})
}

func (w *Watcher) deliver(rw *rootWatch, path string, severity Severity) {
	hint := DirtyHint{SyncID: rw.syncID, Path: path, Severity: severity}
	select {
	case w.hints <- hint:
	default:
		slog.Warn("dirnotify dropped hint, channel full", "sync", rw.syncID, "path", path)
	}
}

// severityOf classifies a raw filesystem event: a rename or removal
// at a path may mean the sync root itself moved and needs immediate
// attention, while an ordinary write can wait for the next pass.
func severityOf(ev notify.Event) Severity {
	switch ev {
	case notify.Rename, notify.Remove:
		return Immediate
	default:
		return Delayed
	}
}
