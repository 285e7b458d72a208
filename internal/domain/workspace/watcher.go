package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/omnik/internal/shared/paths"
)

// DefaultDebounce collapses bursts of file events into one callback
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc is called once per burst of changes in a session workspace
type ChangeFunc func(sessionID string)

// Watcher reports file changes in session workspaces
type Watcher struct {
	debounce time.Duration
	onChange ChangeFunc
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionWatcher
}

type sessionWatcher struct {
	sessionID string
	root      string
	fs        *fsnotify.Watcher
	cancel    chan struct{}
	done      chan struct{}
}

// NewWatcher creates a watcher calling onChange after each debounced burst
func NewWatcher(onChange ChangeFunc, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		debounce: debounce,
		onChange: onChange,
		logger:   logger.Named("watcher"),
		sessions: make(map[string]*sessionWatcher),
	}
}

// Watch starts watching root recursively. Watching a session twice is a no-op.
func (w *Watcher) Watch(sessionID, root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.sessions[sessionID]; ok {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addDirs(fsw, root); err != nil {
		fsw.Close()
		return err
	}

	sw := &sessionWatcher{
		sessionID: sessionID,
		root:      root,
		fs:        fsw,
		cancel:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	w.sessions[sessionID] = sw

	go w.loop(sw)
	return nil
}

// Unwatch stops watching a session
func (w *Watcher) Unwatch(sessionID string) {
	w.mu.Lock()
	sw, ok := w.sessions[sessionID]
	delete(w.sessions, sessionID)
	w.mu.Unlock()

	if ok {
		sw.stop()
	}
}

// Close stops every session watcher
func (w *Watcher) Close() {
	w.mu.Lock()
	sessions := w.sessions
	w.sessions = make(map[string]*sessionWatcher)
	w.mu.Unlock()

	for _, sw := range sessions {
		sw.stop()
	}
}

// Watching reports whether a session is watched
func (w *Watcher) Watching(sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.sessions[sessionID]
	return ok
}

func (sw *sessionWatcher) stop() {
	close(sw.cancel)
	sw.fs.Close()
	<-sw.done
}

func (w *Watcher) loop(sw *sessionWatcher) {
	defer close(sw.done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-sw.cancel:
			return

		case event, ok := <-sw.fs.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addDirs(sw.fs, event.Name); err != nil {
						w.logger.Debug("Failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			if w.onChange != nil {
				w.onChange(sw.sessionID)
			}

		case err, ok := <-sw.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Workspace watch error", zap.String("session_id", sw.sessionID), zap.Error(err))
		}
	}
}

// addDirs watches root and every non-excluded directory below it
func addDirs(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (paths.IsExcludedDir(d.Name()) || paths.IsHidden(d.Name())) {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
}
