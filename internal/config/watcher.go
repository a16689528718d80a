package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is the default delay for batching rapid file system events.
const DebounceDelay = 200 * time.Millisecond

// ChangeFunc is called with the freshly reloaded configuration after the
// watched file changes. It runs on the watcher goroutine.
type ChangeFunc func(cfg *Config)

// Watcher monitors a configuration file and reloads it on change.
// Editors often replace files via rename, so the watch is placed on the
// containing directory and filtered down to the file itself.
type Watcher struct {
	path    string
	onApply ChangeFunc
	logger  *slog.Logger

	watcher *fsnotify.Watcher

	debounceDelay time.Duration
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for the given config file.
// Call Start to begin watching and Close when done.
func NewWatcher(path string, onApply ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		path:          abs,
		onApply:       onApply,
		logger:        logger,
		watcher:       fw,
		debounceDelay: DebounceDelay,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// SetDebounceDelay adjusts the debounce delay. Must be called before Start.
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.debounceDelay = d
}

// Start begins the event processing loop.
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	<-w.stopped
	return err
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("Config watcher error", "error", err)
			}
		case <-w.done:
			return
		}
	}
}

// scheduleReload debounces bursts of file events into a single reload.
func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("Ignoring invalid config change", "path", w.path, "error", err)
		}
		return
	}
	if w.logger != nil {
		w.logger.Info("Config reloaded", "path", w.path)
	}
	if w.onApply != nil {
		w.onApply(cfg)
	}
}
