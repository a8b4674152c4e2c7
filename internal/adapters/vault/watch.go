package vault

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
	"github.com/kimhsiao/notecore/internal/logging"
)

// Watch calls onChange after note or category files change on disk, once per
// burst of events. It returns after the watcher is set up; watching stops when
// ctx is done. The returned channel is closed once the watcher has shut down.
func (a *Adapter) Watch(ctx context.Context, onChange func()) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAdapterFailure, "create watcher", err)
	}

	for _, dir := range []string{a.notesPath(), a.categoriesPath()} {
		if err := addRecursive(watcher, dir); err != nil {
			_ = watcher.Close()
			return nil, apperrors.Wrap(apperrors.ErrAdapterFailure, "watch vault", err)
		}
	}

	done := make(chan struct{})
	d := &debouncer{delay: a.debounce, fn: onChange}
	go func() {
		defer close(done)
		defer watcher.Close()
		defer d.stop()
		a.watchLoop(ctx, watcher, d)
	}()

	logging.Info("Watching vault", map[string]interface{}{"adapter": a.name, "root": a.root})
	return done, nil
}

func (a *Adapter) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, d *debouncer) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				// New subdirectories of the notes directory are watched too.
				_ = addRecursive(watcher, event.Name)
			}
			if a.relevant(event.Name) {
				d.trigger()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.WarnErr("Vault watcher error", err, map[string]interface{}{"adapter": a.name})
		}
	}
}

// relevant reports whether a changed path is a note or category file.
func (a *Adapter) relevant(name string) bool {
	if strings.HasPrefix(filepath.Base(name), TempFilePrefix) {
		return false
	}
	if rel, err := filepath.Rel(a.notesPath(), name); err == nil && !strings.HasPrefix(rel, "..") {
		ok, _ := doublestar.Match(NotePattern, filepath.ToSlash(rel))
		return ok
	}
	if rel, err := filepath.Rel(a.categoriesPath(), name); err == nil && !strings.HasPrefix(rel, "..") {
		ok, _ := doublestar.Match(CategoryPattern, filepath.ToSlash(rel))
		return ok
	}
	return false
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

type debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
