package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch converts files as they are created or modified under the input
// directory until ctx is cancelled. Events are debounced per path by
// config.WatchDebounce, and changed files go through ProcessOne one at a
// time. Directories created while watching are watched too. ready, if
// non-nil, is called once every directory is being watched.
//
// Watch returns nil on cancellation and a *recovery.FatalError when a file
// fails with continue-on-error off.
func (r *Runner) Watch(ctx context.Context, ready func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()

	log := r.log.Slog().With("component", "watch")
	if err := addTree(w, r.cfg.InputDir); err != nil {
		return fmt.Errorf("watch %s: %w", r.cfg.InputDir, err)
	}
	log.Info("watching for changes", "dir", r.cfg.InputDir)
	if ready != nil {
		ready()
	}

	due := make(chan string)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	schedule := func(path string) {
		if t, ok := timers[path]; ok {
			t.Reset(r.cfg.WatchDebounce)
			return
		}
		timers[path] = time.AfterFunc(r.cfg.WatchDebounce, func() {
			select {
			case due <- path:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			r.handleEvent(w, ev, schedule)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)

		case path := <-due:
			delete(timers, path)
			rel, err := filepath.Rel(r.cfg.InputDir, path)
			if err != nil {
				log.Warn("path outside input directory", "path", path)
				continue
			}
			log.Debug("file changed", "path", rel)
			rec, err := r.ProcessOne(ctx, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			log.Debug("file done", "path", rec.Path, "status", string(rec.Status))
		}
	}
}

// handleEvent schedules supported files touched by ev. Rename and remove
// events are ignored: a rename shows up again as a create of the new name.
func (r *Runner) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event, schedule func(string)) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if isHidden(filepath.Base(ev.Name)) {
		return
	}

	fi, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if !ev.Has(fsnotify.Create) {
			return
		}
		// Files may land in a new directory before its watch is added.
		if err := addTree(w, ev.Name); err != nil {
			r.log.Warn("Cannot watch %s: %v", ev.Name, err)
		}
		files, err := Discover(ev.Name, r.cfg.Extensions)
		if err != nil {
			return
		}
		for _, rel := range files {
			schedule(filepath.Join(ev.Name, filepath.FromSlash(rel)))
		}
		return
	}
	if hasExtension(ev.Name, r.cfg.Extensions) {
		schedule(ev.Name)
	}
}

// addTree watches root and every non-hidden directory below it.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
