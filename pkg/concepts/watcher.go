package concepts

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/harun/companion/internal/observability"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a catalog when its file changes on disk
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func(error)

	mu       sync.Mutex
	timer    *time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// NewWatcher watches the catalog's directory. Editors often replace files by
// rename, so the directory is watched and events are filtered by name.
// onReload, if set, is called after every reload attempt.
func NewWatcher(catalog *Catalog, debounce time.Duration, onReload func(error)) (*Watcher, error) {
	if catalog.Path() == "" {
		return nil, fmt.Errorf("concepts: catalog has no backing file")
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		catalog:  catalog,
		watcher:  fw,
		debounce: debounce,
		onReload: onReload,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.catalog.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.eventLoop()

	log.Info().Str("path", w.catalog.Path()).Msg("Concept watcher started")
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
		log.Info().Msg("Concept watcher stopped")
	})
	return err
}

func (w *Watcher) eventLoop() {
	target := filepath.Clean(w.catalog.Path())

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Concept watcher error")

		case <-w.done:
			return
		}
	}
}

// schedule coalesces bursts of writes into one reload
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}

		err := w.catalog.Reload()
		observability.RecordConceptReload(err == nil)
		if err != nil {
			log.Warn().Err(err).Str("path", w.catalog.Path()).Msg("Concept reload failed, keeping previous catalog")
		}
		if w.onReload != nil {
			w.onReload(err)
		}
	})
}
