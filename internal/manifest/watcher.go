package manifest

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before a reload.
const DefaultDebounce = 300 * time.Millisecond

// ReloadFunc observes the outcome of every reload.
type ReloadFunc func(Report, error)

// Watcher reloads a manifest when it, or a task file it references,
// changes. The manifest's directory is watched rather than the file so that
// editors which save by rename are followed.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	applier  *Applier
	logger   *slog.Logger
	debounce time.Duration
	onReload ReloadFunc
	files    map[string]bool
	dirs     map[string]bool
	pending  time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce changes the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadFunc registers fn to be called after every reload.
func WithReloadFunc(fn ReloadFunc) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a Watcher for the manifest at path.
func NewWatcher(path string, applier *Applier, logger *slog.Logger, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		watcher:  fw,
		path:     abs,
		applier:  applier,
		logger:   logger.With("component", "manifest-watcher"),
		debounce: DefaultDebounce,
		files:    map[string]bool{abs: true},
		dirs:     make(map[string]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start loads and applies the manifest once, then watches for changes in a
// goroutine. A manifest that fails to load on start is returned as an error
// and the Watcher cannot be started again.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if _, err := w.reload(); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.watcher.Close()
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
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
		w.logger.Error("close watcher", "error", err)
	}
	w.logger.Info("watcher stopped")
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(max(w.debounce/3, 10*time.Millisecond))
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
			w.logger.Error("watch error", "error", err)
		case <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()
			if due {
				rep, err := w.reload()
				if w.onReload != nil {
					w.onReload(rep, err)
				}
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[name] {
		return
	}
	w.logger.Debug("file changed", "path", name, "op", event.Op.String())
	w.pending = time.Now()
}

// reload loads and applies the manifest, then starts watching any new task
// file directories.
func (w *Watcher) reload() (Report, error) {
	m, err := Load(w.path)
	if err != nil {
		w.logger.Error("manifest reload failed", "path", w.path, "error", err)
		w.watch(nil)
		return Report{}, err
	}
	rep, err := w.applier.Apply(m)
	if err != nil {
		w.logger.Warn("manifest applied with errors", "error", err)
	}
	w.watch(m)
	return rep, err
}

func (w *Watcher) watch(m *Manifest) {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := map[string]bool{w.path: true}
	if m != nil {
		for _, ts := range m.Tasks {
			if ts.File != "" {
				if abs, err := filepath.Abs(ts.File); err == nil {
					files[abs] = true
				}
			}
		}
	} else {
		// Keep watching the previous set until the manifest parses again.
		for f := range w.files {
			files[f] = true
		}
	}
	w.files = files

	for f := range files {
		dir := filepath.Dir(f)
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("watch directory", "dir", dir, "error", err)
			continue
		}
		w.dirs[dir] = true
	}
}
