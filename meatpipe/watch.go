package meatpipe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adnsv/rttools/build"
	"github.com/fsnotify/fsnotify"
)

// Watcher rebuilds a set of tasks whenever one of their inputs or scanned
// dependencies changes on disk.
type Watcher struct {
	Bld      *build.Context
	Tasks    []*Task
	Debounce time.Duration

	// OnBuild is called after every build with its outcome.
	OnBuild func(build.Stats, error)
}

// watchDirs returns the directories holding task inputs and dependencies.
// A failing scan is skipped here; the build that follows reports it.
func (w *Watcher) watchDirs(ctx context.Context) []string {
	dirs := map[string]struct{}{}
	for _, t := range w.Tasks {
		dirs[filepath.Dir(t.input.Abs())] = struct{}{}
		deps, _, err := t.Scan(ctx)
		if err != nil {
			continue
		}
		for _, d := range deps {
			if d.Root() == w.Bld.BldDir {
				continue
			}
			dirs[filepath.Dir(d.Abs())] = struct{}{}
		}
	}
	ret := make([]string, 0, len(dirs))
	for d := range dirs {
		ret = append(ret, d)
	}
	return ret
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	if _, ok := withinDir(w.Bld.BldDir, ev.Name); ok {
		return false
	}
	return true
}

func withinDir(root, fn string) (string, bool) {
	rel, err := filepath.Rel(root, fn)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// Run builds once and then after every relevant change until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	watched := map[string]struct{}{}
	rewatch := func() {
		for _, d := range w.watchDirs(ctx) {
			if _, ok := watched[d]; ok {
				continue
			}
			if err := fw.Add(d); err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					w.Bld.Log.Warnf("cannot watch %s: %v", d, err)
				}
				continue
			}
			w.Bld.Log.Debugf("watching %s", d)
			watched[d] = struct{}{}
		}
	}

	// directories are watched before OnBuild reports a build, so a change
	// made right after it is never missed
	rebuild := func() {
		stats, err := w.Bld.Run(ctx, BuildTasks(w.Tasks))
		rewatch()
		if w.OnBuild != nil {
			w.OnBuild(stats, err)
		}
	}

	rewatch()
	rebuild()

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.Bld.Log.Debugf("changed: %s", ev.Name)
			fire = time.After(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Bld.Log.Warnf("watch: %v", err)
		case <-fire:
			fire = nil
			rebuild()
		}
	}
}

// Watch rebuilds tasks on every change until ctx is done, logging the
// outcome of each build.
func Watch(ctx context.Context, bld *build.Context, tasks []*Task, debounce time.Duration) error {
	w := &Watcher{
		Bld:      bld,
		Tasks:    tasks,
		Debounce: debounce,
		OnBuild: func(s build.Stats, err error) {
			if err != nil {
				bld.Log.Errorf("%v", err)
				return
			}
			bld.Log.Infof("%d built, %d up to date", s.Built, s.UpToDate)
		},
	}
	return w.Run(ctx)
}
