// Package watcher reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/finesssee/streambridge/internal/config"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce coalesces the burst of events editors produce for a single save.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives every configuration that loaded and validated successfully.
type ReloadFunc func(*config.Config)

// Watcher watches one config file.
type Watcher struct {
	path     string
	reload   ReloadFunc
	debounce time.Duration
}

// New returns a watcher for the config file at path.
func New(path string, reload ReloadFunc) *Watcher {
	return &Watcher{path: path, reload: reload, debounce: DefaultDebounce}
}

// SetDebounce changes the quiet period before a reload.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Run watches until ctx is done. The parent directory is watched so that editors replacing the
// file through a rename are seen.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("watcher: resolve %s: %w", w.path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer func() {
		if errClose := fw.Close(); errClose != nil {
			log.Errorf("watcher: close: %v", errClose)
		}
	}()

	if err = fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", filepath.Dir(abs), err)
	}
	log.Debugf("watching config file %s", abs)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)
		case errWatch, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watcher: %v", errWatch)
		case <-timer.C:
			w.apply(abs)
		}
	}
}

func (w *Watcher) apply(path string) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Errorf("config reload failed, keeping previous configuration: %v", err)
		return
	}
	warnings, err := config.ValidateConfig(cfg)
	if err != nil {
		log.Errorf("reloaded config is invalid, keeping previous configuration: %v", err)
		return
	}
	for _, warning := range warnings {
		log.Warn(warning)
	}
	log.Debugf("config file %s changed, applying", path)
	w.reload(cfg)
}
