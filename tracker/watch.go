package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/taskmaster/comms"
)

// watchDebounce coalesces the burst of events a temp-file rename produces.
const watchDebounce = 100 * time.Millisecond

// Watch calls fn whenever one of the data files is created, written, or
// replaced, until ctx is done. The parent directories are watched because
// saves replace the files by rename.
func (s *Service) Watch(ctx context.Context, fn func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	files := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range []string{s.opts.TasksPath, s.opts.AgentsPath, s.opts.SprintsPath} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	pending := map[string]bool{}
	timer := time.NewTimer(watchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[event.Name] = true
			timer.Reset(watchDebounce)
		case <-timer.C:
			for p := range pending {
				fn(p)
			}
			clear(pending)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("file watcher", slog.Any("err", err))
		}
	}
}

// WatchAndPublish runs Watch, publishing a store_changed event per changed
// file.
func (s *Service) WatchAndPublish(ctx context.Context) error {
	return s.Watch(ctx, func(path string) {
		s.logger.Debug("data file changed", slog.String("path", path))
		s.publish(ctx, comms.TypeStoreChanged, TopicStore, filepath.Base(path), map[string]string{"path": path})
	})
}
