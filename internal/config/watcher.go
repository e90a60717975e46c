package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes and publishes each valid
// result to subscribers. Invalid edits are logged and the previous config stays.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	log      zerolog.Logger
	debounce time.Duration
	current  *Config
	subs     []func(*Config)
	mu       sync.RWMutex
}

// NewWatcher starts watching the directory holding path. The directory is
// watched rather than the file so editors that replace the file are noticed.
func NewWatcher(path string, initial *Config, log zerolog.Logger) (*Watcher, error) {
	if path == "" {
		path = Path()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	if initial == nil {
		initial = Default()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  fw,
		log:      log.With().Str("component", "config-watcher").Logger(),
		debounce: 200 * time.Millisecond,
		current:  initial,
	}, nil
}

// Subscribe registers fn to receive every reloaded config.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Current returns the latest valid config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors often emit several events per save.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			trigger = timer.C

		case <-trigger:
			trigger = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("Config watcher error")

		case <-ctx.Done():
			return
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid config change")
		return
	}

	w.mu.Lock()
	w.current = cfg
	subs := append(([]func(*Config))(nil), w.subs...)
	w.mu.Unlock()

	w.log.Info().Str("path", w.path).Msg("Config reloaded")
	for _, fn := range subs {
		fn(cfg)
	}
}
