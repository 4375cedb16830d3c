package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must stay quiet before it is re-indexed.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatcherFailed means the filesystem watcher could not be started.
var ErrWatcherFailed = errors.New("failed to start filesystem watcher")

// Watch re-indexes knowledge files under root as they are created or
// modified, until ctx is cancelled. It does not run an initial ingest.
// Deleted files keep their documents.
func (idx *Indexer) Watch(ctx context.Context, store DocumentIndexer, root string, opts IngestOptions, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer watcher.Close()

	if err := idx.watchTree(watcher, absRoot); err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	idx.logger.Info("watching knowledge directory", zap.String("root", absRoot))

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				continue
			}
			if info.IsDir() {
				if event.Has(fsnotify.Create) && !idx.scanner.Ignored(info.Name()) {
					if err := idx.watchTree(watcher, event.Name); err != nil {
						idx.logger.Warn("failed to watch directory", zap.String("dir", event.Name), zap.Error(err))
					}
				}
				continue
			}
			if !idx.scanner.Accepts(event.Name) {
				continue
			}

			pending[event.Name] = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			idx.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)

			for _, p := range paths {
				if err := idx.reindexFile(ctx, store, absRoot, p, opts); err != nil {
					idx.logger.Error("failed to re-index file", zap.String("file", p), zap.Error(err))
				}
			}
		}
	}
}

// watchTree adds dir and its non-ignored subdirectories to the watcher
func (idx *Indexer) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && idx.scanner.Ignored(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (idx *Indexer) reindexFile(ctx context.Context, store DocumentIndexer, root, path string, opts IngestOptions) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	chunks, err := idx.chunker.ChunkFile(idx.scanner.fileInfo(root, path, info))
	if err != nil {
		return err
	}

	_, err = idx.indexFile(ctx, store, chunks, opts)
	return err
}
