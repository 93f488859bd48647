package server

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/menta2k/video-altitude/internal/config"
)

// ConfigWatcher reloads the config file when it changes on disk
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*config.Config) error
	log      *slog.Logger
	done     chan struct{}
}

// NewConfigWatcher creates a watcher for path. onChange receives every
// successfully parsed version of the file.
func NewConfigWatcher(path string, onChange func(*config.Config) error, log *slog.Logger) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &ConfigWatcher{
		path:     abs,
		watcher:  watcher,
		onChange: onChange,
		log:      log,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The directory is watched rather than the file so
// that editors which replace the file on save are still seen.
func (cw *ConfigWatcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return err
	}
	cw.log.Info("Watching config", "path", cw.path)
	go cw.processEvents()
	return nil
}

// Stop stops the watcher
func (cw *ConfigWatcher) Stop() error {
	select {
	case <-cw.done:
		return nil
	default:
	}
	close(cw.done)
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) processEvents() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cw.reload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn("Config watcher error", "error", err)

		case <-cw.done:
			return
		}
	}
}

// reload keeps the running config when the new file does not parse or is
// rejected by onChange.
func (cw *ConfigWatcher) reload() {
	cfg, err := config.LoadFromFile(cw.path)
	if err != nil {
		cw.log.Warn("Ignoring config change", "path", cw.path, "error", err)
		return
	}
	if err := cw.onChange(cfg); err != nil {
		cw.log.Warn("Ignoring config change", "path", cw.path, "error", err)
		return
	}
	cw.log.Info("Config reloaded", "path", cw.path)
}
