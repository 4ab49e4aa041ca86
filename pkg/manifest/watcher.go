package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marbledata/marble/pkg/telemetry"
)

// DefaultDebounce is the quiet period after the last file event before the
// callback fires. Editors tend to produce bursts of writes.
const DefaultDebounce = 500 * time.Millisecond

// Watch observes a manifest file or directory and invokes fn after each
// burst of changes. It blocks until the context is cancelled.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *telemetry.Logger, fn func(context.Context)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watching manifests: %w", err)
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watching manifests: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Zerolog().Info().Str("path", dir).Msg("watching for manifest changes")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			logger.Zerolog().Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("manifest change")
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			armed = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("manifest watch error")

		case <-timer.C:
			armed = false
			fn(ctx)
		}
	}
}

// relevantEvent filters for content changes to manifest files.
func relevantEvent(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".yaml" || ext == ".yml"
}
