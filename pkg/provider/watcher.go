package provider

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ConfigWatcher watches the config file for provider changes and invokes
// the reload callback, debounced, after writes settle.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	path     string
	onChange func()
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewConfigWatcher creates a watcher for the given config file
func NewConfigWatcher(logger zerolog.Logger, path string, onChange func()) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &ConfigWatcher{
		watcher:  watcher,
		logger:   logger,
		path:     path,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	// Watch the directory: editors replace files on save, which drops
	// watches attached to the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go cw.run()

	return cw, nil
}

// Stop stops the watcher
func (cw *ConfigWatcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) run() {
	target := filepath.Base(cw.path)

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if !strings.EqualFold(filepath.Base(event.Name), target) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				cw.logger.Debug().
					Str("file", target).
					Str("op", event.Op.String()).
					Msg("Config change detected")

				cw.scheduleReload()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error().Err(err).Msg("Config watcher error")

		case <-cw.stopCh:
			return
		}
	}
}

func (cw *ConfigWatcher) scheduleReload() {
	if cw.timer != nil {
		cw.timer.Stop()
	}

	cw.timer = time.AfterFunc(cw.debounce, func() {
		cw.logger.Info().Msg("Reloading provider configuration")
		cw.onChange()
	})
}
