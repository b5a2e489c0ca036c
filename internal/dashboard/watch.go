package dashboard

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"datanerd/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher rebuilds the dashboard whenever a run-log file changes.
// Rapid appends within the debounce window collapse into one rebuild.
type Watcher struct {
	mu        sync.Mutex
	builder   *Builder
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	dirty     bool
	lastEvent time.Time
	rebuilds  int
	errors    int
}

// NewWatcher creates a watcher over the builder's runs dir. A zero
// debounce uses the default.
func NewWatcher(b *Builder, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		builder:  b,
		watcher:  fsw,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine. It is non-blocking;
// callers stop the watcher with Stop or by cancelling ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.builder.opts.RunsDir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.builder.opts.RunsDir); err != nil {
		return err
	}
	logging.Dashboard("watching %s", w.builder.opts.RunsDir)

	go w.run(ctx)
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
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

	if err := w.watcher.Close(); err != nil {
		logging.DashboardDebug("close watcher: %v", err)
	}
}

// Rebuilds returns how many rebuilds the watcher has performed.
func (w *Watcher) Rebuilds() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rebuilds
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.DashboardDebug("watch error: %v", err)
			w.mu.Lock()
			w.errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent marks the dashboard dirty. Only run-log files count, so
// the rebuilt index.html never retriggers the watcher.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !relevantEvent(event) {
		return
	}
	logging.DashboardDebug("run log changed: %s", event.Name)
	w.mu.Lock()
	w.dirty = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

// flush rebuilds once the last event has settled past the debounce
// window.
func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.dirty || time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.dirty = false
	w.mu.Unlock()

	if err := w.builder.Build(); err != nil {
		logging.Get(logging.CategoryDashboard).Warn("rebuild failed: %v", err)
		w.mu.Lock()
		w.errors++
		w.mu.Unlock()
		return
	}
	w.mu.Lock()
	w.rebuilds++
	w.mu.Unlock()
}

func relevantEvent(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write) != 0
}
