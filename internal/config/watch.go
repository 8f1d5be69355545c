package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file whenever it changes on disk and calls
// onChange with the new config. Editors replace files rather than
// writing in place, so the parent directory is watched and events are
// debounced and deduplicated by content hash. Runs until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	lastHash, _ := Hash(path)

	var debounce *time.Timer
	reload := func() {
		h, err := Hash(path)
		if err != nil || h == lastHash {
			return
		}
		lastHash = h

		cfg, err := Load(path)
		if err != nil {
			slog.Warn("config.reload_failed", "path", path, "error", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			slog.Warn("config.reload_invalid", "path", path, "error", err)
			return
		}
		slog.Info("config.reloaded", "path", path)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config.watch_error", "error", err)
		}
	}
}
