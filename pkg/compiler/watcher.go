package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lhorie/fusion-cli/internal/logger"
)

// Watcher re-runs builds when the source tree changes.
//
// Filesystem events are debounced: a rebuild fires only after the tree has
// been quiet for the configured interval, so editors that write multiple
// files in a burst trigger one build.
type Watcher struct {
	srcDir   string
	debounce time.Duration
	onChange func(ctx context.Context)
}

// NewWatcher creates a watcher over srcDir that invokes onChange after each
// debounced change burst.
func NewWatcher(srcDir string, debounce time.Duration, onChange func(ctx context.Context)) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{
		srcDir:   srcDir,
		debounce: debounce,
		onChange: onChange,
	}
}

// Run watches until ctx is cancelled.
//
// Newly created subdirectories are added to the watch set as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := addRecursive(fw, w.srcDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.srcDir, err)
	}

	logger.Info("watching for changes",
		logger.KeyDir, w.srcDir,
		"debounce", w.debounce.String(),
	)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timer.C:
			pending = false
			w.onChange(ctx)

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := addRecursive(fw, event.Name); err != nil {
						logger.Warn("failed to watch new directory",
							logger.KeyDir, event.Name,
							logger.KeyError, err,
						)
					}
				}
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			logger.Debug("source change detected",
				logger.KeyFile, event.Name,
				"op", event.Op.String(),
			)

			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", logger.KeyError, err)
		}
	}
}

// addRecursive adds dir and every subdirectory to the watch set.
func addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(path)
	})
}
