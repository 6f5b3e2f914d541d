package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the config whenever the config file changes and passes the
// result to onChange. It blocks until ctx is cancelled. Reload failures are
// logged and the previous config stays in effect.
func Watch(ctx context.Context, onChange func(Config)) error {
	path := ConfigFilePath()
	return watchFile(ctx, path, func() (Config, error) {
		return loadWith(newFileBackend(path))
	}, onChange)
}

func watchFile(ctx context.Context, path string, load func() (Config, error), onChange func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors and SetKey replace the file rather than
	// writing it in place.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(watchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)

		case <-pending:
			pending = nil
			cfg, err := load()
			if err != nil {
				slog.Warn("config reload failed, keeping previous values", "path", path, "error", err)
				continue
			}
			slog.Info("config reloaded", "path", path)
			onChange(cfg)
		}
	}
}
