package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/verte-zerg/wordflow/internal/debounce"
)

// reloadDelay collapses the several events editors emit per save.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the config at path whenever it changes and hands the result
// to fn, together with any load error. It blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(FileConfig, error)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer func() {
		if cerr := fw.Close(); cerr != nil {
			// Best-effort watcher close.
			_ = cerr
		}
	}()

	// Watch the directory: editors often replace the file by renaming a
	// temporary one over it, which drops a watch on the file itself.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	reload := debounce.New(reloadDelay, func() {
		fn(LoadConfig(path))
	})
	defer reload.Stop()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				reload.Trigger()
			}
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			fn(FileConfig{}, fmt.Errorf("config watcher: %w", werr))
		}
	}
}
