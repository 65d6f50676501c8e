// Package watcher reloads the daemon configuration when its file changes.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// ConfigWatcher watches one configuration file and calls onReload after it
// has been written, created or replaced.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	file     string
	target   string // symlink target of file, if any
	debounce time.Duration
	logger   *logrus.Entry
	onReload func(path string)

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher for file. fsnotify does not follow symlinks, so when
// file is a link the directory of its target is watched too.
func New(file string, debounce time.Duration, logger *logrus.Entry, onReload func(string)) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Editors often replace the file, so watch its directory rather than the file itself.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		watcher:  w,
		file:     abs,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
	}
	if cw.debounce <= 0 {
		cw.debounce = DefaultDebounce
	}

	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if target, err := filepath.EvalSymlinks(abs); err == nil {
			cw.target = target
			if filepath.Dir(target) != filepath.Dir(abs) {
				if err := w.Add(filepath.Dir(target)); err != nil {
					logger.WithError(err).Warnf("Failed to watch symlink target dir %s", filepath.Dir(target))
				}
			}
		}
	}

	return cw, nil
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	defer w.stopTimer()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

func (w *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	return name == w.file || (w.target != "" && name == w.target)
}

// schedule restarts the debounce timer; onReload runs once the file has been
// quiet for the debounce interval.
func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Infof("Config changed: %s", filepath.Base(w.file))
		if w.onReload != nil {
			w.onReload(w.file)
		}
	})
}

func (w *ConfigWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	return w.watcher.Close()
}
