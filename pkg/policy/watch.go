package policy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the engine whenever one of its backing files is written or
// replaced. It blocks until ctx is done. A file that fails validation is
// logged and ignored; the previous generation stays active.
func (e *Engine) Watch(ctx context.Context) error {
	cur := e.cfg.Load()
	paths := make(map[string]bool, 2)
	for _, p := range []string{cur.manifestPath, cur.governancePath} {
		if p != "" {
			paths[filepath.Clean(p)] = true
		}
	}
	if len(paths) == 0 {
		return ErrNoSource
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch directories: editors replace files by rename, which drops a
	// watch placed on the file itself.
	dirs := map[string]bool{}
	for p := range paths {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watching policy dir %s: %w", d, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !paths[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := e.ReloadFromFiles(); err != nil {
				e.logger.Warn("policy file changed but reload failed", zap.String("file", event.Name), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("policy watcher error: %w", err)
		}
	}
}
