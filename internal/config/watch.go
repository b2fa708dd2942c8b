package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/newsreaper/newsreaper/internal/catalog"
)

// reloadDebounce collapses the burst of filesystem events an editor save
// produces (truncate + write, or write + rename) into a single reload.
const reloadDebounce = 200 * time.Millisecond

// Watch monitors the config file at path and calls onChange with a fully
// validated replacement each time it changes. It runs until ctx is cancelled.
//
// A replacement is accepted only if the config itself validates AND the
// pattern catalog it points at still loads; otherwise the error is logged
// and the previous config remains active. Running stages are never handed
// thresholds or a catalog reference that would fail at the next run.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	var debounce *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(reloadDebounce)
				fire = debounce.C
			} else {
				debounce.Reset(reloadDebounce)
			}

		case <-fire:
			debounce = nil
			fire = nil

			if cfg, err := reload(path); err != nil {
				slog.Error("config: reload rejected, keeping previous config",
					"path", path, "err", err)
			} else {
				slog.Info("config: reloaded", "path", path,
					"ambiguity_threshold", cfg.Stages.AmbiguityThreshold,
					"override_threshold", cfg.Stages.OverrideThreshold,
					"catalog_path", cfg.Stages.CatalogPath)
				onChange(cfg)
			}

			// An atomic save may have replaced the inode; re-add the path
			// so the next save is still observed.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// reload parses a candidate config and proves the catalog it references
// loads before the replacement is handed to the caller.
func reload(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if _, err := catalog.Load(cfg.Stages.CatalogPath); err != nil {
		return nil, fmt.Errorf("catalog check: %w", err)
	}
	return cfg, nil
}
