package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long a file must stay quiet before it is planned again;
// editors often write a file in several steps.
const settle = 100 * time.Millisecond

// watch re-plans a file whenever it changes, until ctx is cancelled. The
// containing directories are watched so files replaced by rename are seen.
func (r *runner) watch(ctx context.Context, paths []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	watched := make(map[string]string, len(paths))
	dirs := make(map[string]bool)

	for _, path := range paths {
		abs, err := filepath.Abs(r.resolve(path))
		if err != nil {
			return err
		}

		watched[abs] = path

		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := w.Add(dir); err != nil {
				return err
			}

			dirs[dir] = true
		}
	}

	r.logger.Info("watching %d file(s)", len(watched))

	pending := make(map[string]bool)
	timer := time.NewTimer(settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			path, ok := watched[filepath.Clean(ev.Name)]
			if !ok {
				continue
			}

			r.logger.Debug("%s: %s", ev.Op, ev.Name)
			pending[path] = true
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			r.logger.Warn("watch: %v", err)
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for _, path := range paths {
				if pending[path] {
					changed = append(changed, path)
				}
			}

			pending = make(map[string]bool)

			if _, err := r.planAll(ctx, changed); err != nil {
				return err
			}
		}
	}
}
