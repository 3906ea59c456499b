// Package watch turns filesystem changes under the task directories into
// tick requests.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fentz26/missionctl/internal/logging"
)

// DefaultDebounce collapses the burst of events a single editor save emits.
const DefaultDebounce = 250 * time.Millisecond

var ignoreDirs = []string{".git", "node_modules", ".DS_Store"}

// Watcher calls notify once per burst of changes under the watched trees.
type Watcher struct {
	watcher  *fsnotify.Watcher
	notify   func()
	debounce time.Duration
	logger   *logging.Logger

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher. notify must not block.
func New(notify func(), debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Watcher{
		watcher:  fw,
		notify:   notify,
		debounce: debounce,
		logger:   logger.WithComponent("watch"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Add watches each existing directory tree. Paths that do not exist yet are
// skipped.
func (w *Watcher) Add(paths ...string) error {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			w.logger.Debug("watch path skipped", "path", p, "error", err)
			continue
		}
		if !info.IsDir() {
			p = filepath.Dir(p)
		}
		if err := w.addRecursive(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	if err := w.watcher.Add(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		if ignored(path) {
			return filepath.SkipDir
		}
		_ = w.watcher.Add(path)
		return nil
	})
}

// WatchList returns the directories currently watched.
func (w *Watcher) WatchList() []string {
	return w.watcher.WatchList()
}

// Start begins processing events.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(event.Name)
				}
			}
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if pending {
				pending = false
				w.logger.Debug("change detected, requesting tick")
				w.notify()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	// Temp files from atomic rewrites.
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return !ignored(event.Name)
}

func ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, ig := range ignoreDirs {
			if part == ig {
				return true
			}
		}
	}
	return false
}
