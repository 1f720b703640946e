package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/airquality.report/internal/monitoring"
)

const reloadDebounce = 200 * time.Millisecond

// Watch re-reads the TOML file at path whenever it is written, layers it and
// the SDS011_* environment over base using the same changed-flag rules, and
// passes the validated result to fn. It blocks until ctx is done.
func Watch(ctx context.Context, path string, base Config, changed map[string]bool, fn func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config watcher: failed to watch %s: %w", path, err)
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce = time.After(reloadDebounce)

		case <-debounce:
			debounce = nil
			fc, err := LoadFileConfig(path)
			if err != nil {
				monitoring.Warnf("config reload: %v", err)
				continue
			}
			cfg := base
			if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
				monitoring.Warnf("config reload: %v", err)
				continue
			}
			if err := ApplyEnvConfig(&cfg, changed); err != nil {
				monitoring.Warnf("config reload: %v", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				monitoring.Warnf("config reload rejected: %v", err)
				continue
			}
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			monitoring.Errorf("config watcher: %v", err)
		}
	}
}
