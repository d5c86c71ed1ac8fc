package build

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"ndforge/internal/libspec"
	"ndforge/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watch builds the spec at specPath, then rebuilds it every time the file
// changes until ctx is done. onResult is called after every build, failed
// or not. opts.Clean applies to the first build only. Watch returns nil when
// ctx is canceled.
//
// The directory is watched rather than the file so editors that replace the
// file on save keep triggering rebuilds.
func (b *Builder) Watch(ctx context.Context, specPath string, opts Options, onResult func(*Result, error)) error {
	specPath, err := filepath.Abs(specPath)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(specPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(specPath), err)
	}
	logging.Build("watching %s", specPath)

	rebuild := func() {
		spec, err := libspec.Load(specPath)
		if err != nil {
			onResult(nil, err)
			return
		}
		res, err := b.Build(ctx, spec, opts)
		opts.Clean = false
		onResult(res, err)
	}
	rebuild()

	debounce := b.cfg.Build.GetWatchDebounce()
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Build("watch of %s stopped", specPath)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != specPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			logging.BuildDebug("watch: %s %s", event.Op, event.Name)
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.BuildWarn("watch error: %v", err)

		case <-timer.C:
			if ctx.Err() != nil {
				return nil
			}
			logging.Build("%s changed, rebuilding", filepath.Base(specPath))
			rebuild()
		}
	}
}
