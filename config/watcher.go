package config

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/errors"
)

// Watcher watches the config file and triggers reload callbacks on
// change. Rapid successive writes (editors often write twice) are
// debounced into a single reload.
type Watcher struct {
	path           string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	log            *zap.SugaredLogger
}

// ReloadCallback receives the freshly loaded config. Callback errors
// are logged; later callbacks still run.
type ReloadCallback func(*Config) error

// NewWatcher creates a watcher over the config file at path.
func NewWatcher(path string, log *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watching config file %s", path)
	}
	return &Watcher{
		path:           path,
		watcher:        fw,
		debouncePeriod: 500 * time.Millisecond,
		log:            log,
	}, nil
}

// OnReload registers a callback for future reloads.
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop closes the underlying watcher; the watch loop exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if isBackupFile(event.Name) {
				continue
			}
			w.log.Infow("Config file changed",
				"file", event.Name,
				"op", event.Op.String())
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnw("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.reload(); err != nil {
			w.log.Errorw("Config reload failed", "error", err)
		}
	})
}

func (w *Watcher) reload() error {
	cfg, err := LoadFromFile(w.path, w.log)
	if err != nil {
		return err
	}
	w.log.Infow("Config reloaded", "path", w.path)

	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			w.log.Warnw("Config reload callback error", "error", err)
		}
	}
	return nil
}

func isBackupFile(path string) bool {
	return strings.HasSuffix(path, ".bak") || strings.HasSuffix(path, "~")
}
