package character

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"reverie/internal/logging"
)

// Watcher reloads the registry when character files change on disk, so a
// persona edit lands without restarting the app.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	registry    *Registry
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher over the registry's characters dir.
func NewWatcher(registry *Registry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		registry:    registry,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // editors fire bursts of writes per save
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call once; a missing dir is not an error,
// the watcher simply has nothing to report.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(w.registry.dir); err != nil {
		logging.Get(logging.CategorySession).Warn("character watch unavailable: %v", err)
		close(w.doneCh)
		return nil
	}
	w.running = true
	go w.loop()
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	log := logging.Get(logging.CategorySession)

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if !w.debounced(event.Name) {
				continue
			}
			log.Debug("character file changed: %s (%s)", event.Name, event.Op)
			if err := w.registry.Reload(); err != nil {
				log.Error("character reload failed: %v", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("character watcher error: %v", err)
		}
	}
}

func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.debounceMap[path]; ok && now.Sub(last) < w.debounceDur {
		return false
	}
	w.debounceMap[path] = now
	return true
}
