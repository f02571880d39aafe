package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/cuemby/igniteclient/pkg/log"
)

// Watcher reloads a Store's configuration whenever the backing file
// changes on disk.
type Watcher struct {
	path    string
	store   *Store
	watcher *fsnotify.Watcher
	onApply func(old, new *Config)
}

// NewWatcher creates a Watcher for path, reloading into store on change.
// onApply, if non-nil, is invoked with the previous and new snapshots
// after each successful reload so subscribers (the event router's domain
// map, the timestamp validator's exception list) can react.
func NewWatcher(path string, store *Store, onApply func(old, new *Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, store: store, watcher: fw, onApply: onApply}, nil
}

// Run blocks, reloading the configuration on every write/create event until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	logger := log.WithComponent("config-watcher")
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn().Err(err).Msg("config reload failed, keeping previous snapshot")
				continue
			}
			old := w.store.Get()
			w.store.Swap(cfg)
			if w.onApply != nil {
				w.onApply(old, cfg)
			}
			logger.Info().Msg("configuration reloaded")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config watch error")
		}
	}
}

// Close stops the underlying fsnotify watcher without waiting for Run to
// observe ctx cancellation; used by callers that manage their own
// goroutine lifecycle.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
