package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/helpdesk/internal/ignore"
)

// DefaultDebounce coalesces bursts of file events into one rebuild.
const DefaultDebounce = 500 * time.Millisecond

// Watch rebuilds the keyword index whenever a manual under dir is written,
// created, renamed or removed. It blocks until ctx is done. onRebuild, when
// non-nil, is called after every rebuild attempt.
func (ix *Indexer) Watch(ctx context.Context, dir string, debounce time.Duration, onRebuild func(chunks int, err error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	skip, err := ignore.Load(dir)
	if err != nil {
		return fmt.Errorf("loading ignore patterns: %w", err)
	}
	ignoreFile := filepath.Join(dir, ignore.DefaultFile)

	if err := addTree(watcher, dir); err != nil {
		return err
	}
	ix.logger.Info("watching data directory", zap.String("dir", dir))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories must be watched too.
				_ = addTree(watcher, event.Name)
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if filepath.Clean(event.Name) == ignoreFile {
				if m, err := ignore.Load(dir); err != nil {
					ix.logger.Warn("ignore file reload failed", zap.Error(err))
				} else {
					skip = m
				}
			} else if rel, err := filepath.Rel(dir, event.Name); err != nil || !IsManual(event.Name) || skip.Match(rel) {
				continue
			}
			ix.logger.Debug("manual changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			chunks, err := ix.RebuildKeyword(ctx, dir)
			if err != nil {
				ix.logger.Warn("keyword index rebuild failed", zap.Error(err))
			} else {
				ix.logger.Info("keyword index rebuilt", zap.Int("chunks", chunks))
			}
			if onRebuild != nil {
				onRebuild(chunks, err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// addTree watches root and every directory below it. root may be a file,
// in which case nothing is added.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
