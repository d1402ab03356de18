package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reloads a config file when it changes and hands the result to
// onReload. A file that fails to load or validate is reported with a nil
// config and the previous snapshot is kept.
type Watcher struct {
	path     string
	onReload func(*Config, error)
	debounce time.Duration
	log      zerolog.Logger

	fsw     *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	reloads atomic.Uint32

	mu      sync.RWMutex
	current Config
	timer   *time.Timer
	// reloadMu serializes reloads with Close; once Close holds it and done
	// is closed, onReload is never called again.
	reloadMu sync.Mutex
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long writes must settle before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the watcher's logger.
func WithLogger(l *zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l.With().Str("component", "config").Logger()
		}
	}
}

// NewWatcher loads path once and starts watching it. The directory is
// watched rather than the file so that editors replacing the file by rename
// are noticed.
func NewWatcher(path string, onReload func(*Config, error), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		debounce: defaultDebounce,
		log:      zerolog.Nop(),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	w.current = cfg

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}
	w.fsw = fsw
	w.wg.Add(1)
	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.debounce, w.reload)
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Str("event", "watch_error").Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()
	select {
	case <-w.done:
		return
	default:
	}
	count := w.reloads.Add(1)
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("event", "config_reload_error").Uint32("count", count).Msg("failed to reload config")
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	w.log.Info().Str("event", "config_reload").Str("path", w.path).Uint32("count", count).Msg("config reloaded")
	if w.onReload != nil {
		w.onReload(&cfg, nil)
	}
}

// Snapshot returns the last successfully loaded config.
func (w *Watcher) Snapshot() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ReloadCount returns the number of reload attempts.
func (w *Watcher) ReloadCount() uint32 {
	return w.reloads.Load()
}

// Close stops watching. Pending debounced reloads are dropped and a reload
// already running is waited for, so onReload is not called after Close
// returns.
func (w *Watcher) Close() error {
	close(w.done)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.reloadMu.Lock()
	w.reloadMu.Unlock()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
