// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces bursts of file events into one run.
const DefaultDebounce = 500 * time.Millisecond

// Schedule calls fn on every tick of the standard cron expression spec until
// ctx is done. Ticks that arrive while fn is still running are skipped. With
// runNow, fn also runs once immediately.
func Schedule(ctx context.Context, spec string, runNow bool, fn func(context.Context) error, logger zerolog.Logger) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	run := func() {
		if err := fn(ctx); err != nil {
			logger.Error().Err(err).Str("schedule", spec).Msg("scheduled run failed")
		}
	}
	id, err := c.AddFunc(spec, run)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info().Str("schedule", spec).Time("next", c.Entry(id).Next).Msg("scheduler started")
	if runNow {
		run()
	}

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info().Msg("scheduler stopped")
	return nil
}

// Watch calls fn whenever path is written, created or replaced, at most once
// per debounce interval, until ctx is done. The parent directory is watched so
// atomic replacements are seen.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(context.Context) error, logger zerolog.Logger) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	target := filepath.Clean(path)
	logger.Info().Str("path", target).Dur("debounce", debounce).Msg("watching for changes")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				logger.Debug().Str("op", ev.Op.String()).Msg("input changed")
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		case <-timer.C:
			if err := fn(ctx); err != nil {
				logger.Error().Err(err).Msg("run after change failed")
			}
		}
	}
}
