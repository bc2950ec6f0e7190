package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// Watch reloads the settings file at path whenever it changes and passes
// each valid result to fn. Invalid files are logged and skipped, leaving
// the previous configuration in place. Watching stops when ctx is done.
//
// The parent directory is watched so that atomic replace-on-save is seen.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch settings dir: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					pending = time.After(reloadDebounce)
				}
			case <-pending:
				pending = nil
				reload(path, fn)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("path", path).Msg("Settings watcher error")
			}
		}
	}()

	log.Info().Str("path", path).Msg("Watching settings file")
	return nil
}

func reload(path string, fn func(*Config)) {
	cfg, err := LoadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Settings reload failed, keeping previous config")
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Reloaded settings invalid, keeping previous config")
		return
	}
	Set(cfg)
	log.Info().Str("path", path).Msg("Settings reloaded")
	fn(cfg)
}
