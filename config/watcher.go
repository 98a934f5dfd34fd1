package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/netresearch/chron/core"
)

func parentDir(path string) string {
	return filepath.Dir(path)
}

// debounceWindow is how long the watcher waits after the last relevant
// filesystem event before re-invoking Load (spec.md §4.7).
const debounceWindow = time.Second

// Watcher debounces filesystem events on a chronfile and reloads it into a
// supervisor. Exceptions from Load are logged and swallowed; the watcher
// keeps running.
type Watcher struct {
	path       string
	supervisor *core.Supervisor
	logger     core.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher starts watching the directory containing path (fsnotify
// watches directories, not individual files, so editors that replace the
// file via rename-in-place still trigger events).
func NewWatcher(path string, supervisor *core.Supervisor, logger core.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(parentDir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:       path,
		supervisor: supervisor,
		logger:     logger,
		fsw:        fsw,
		done:       make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := Load(w.supervisor, w.path); err != nil {
				w.logger.Errorf("reload %s: %v", w.path, err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("watch %s: %v", w.path, err)
		}
	}
}
