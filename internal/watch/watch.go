// Package watch turns filesystem changes under a workspace into inspection
// passes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"scancoord/internal/logging"
	"scancoord/internal/model"
	"scancoord/internal/schedule"
	"scancoord/internal/session"
)

// Target is the part of a session the watcher drives.
type Target interface {
	Inspect(req session.Request) []model.RenderEntry
	CloseFile(path string)
}

// ScanFactory builds the scan for one file.
type ScanFactory func(path string) schedule.ScanFunc

type Options struct {
	Root string
	// Skip lists extra directory names to ignore. Dot-directories are always
	// ignored.
	Skip   []string
	Scan   ScanFactory
	Dark   bool
	Logger *zap.SugaredLogger
}

type Watcher struct {
	root   string
	skip   map[string]struct{}
	scan   ScanFactory
	dark   bool
	target Target
	fsw    *fsnotify.Watcher
	log    *zap.SugaredLogger
}

func New(target Target, opts Options) (*Watcher, error) {
	if target == nil {
		return nil, errors.New("watch target is required")
	}
	if opts.Scan == nil {
		return nil, errors.New("scan factory is required")
	}
	root, err := filepath.Abs(strings.TrimSpace(opts.Root))
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	w := &Watcher{
		root:   root,
		skip:   make(map[string]struct{}, len(opts.Skip)),
		scan:   opts.Scan,
		dark:   opts.Dark,
		target: target,
		fsw:    fsw,
		log:    logging.OrNop(opts.Logger).Named("watch"),
	}
	for _, name := range opts.Skip {
		if name = strings.TrimSpace(name); name != "" {
			w.skip[name] = struct{}{}
		}
	}
	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Root() string { return w.root }

// InspectAll runs an inspection pass over every regular file under the root
// and returns how many were inspected.
func (w *Watcher) InspectAll() int {
	n := 0
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.root && w.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.inspect(path) {
			n++
		}
		return nil
	})
	return n
}

// Run dispatches filesystem events until ctx is done or the watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warnw("event queue overflowed, rescanning tree", "root", w.root)
				w.InspectAll()
				continue
			}
			w.log.Warnw("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if w.ignoredPath(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		_ = w.fsw.Remove(ev.Name)
		w.target.CloseFile(ev.Name)
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(ev.Name); err != nil {
					w.log.Warnw("cannot watch new directory", "path", ev.Name, "error", err)
				}
			}
			return
		}
		if info.Mode().IsRegular() {
			w.inspect(ev.Name)
		}
	}
}

func (w *Watcher) inspect(path string) bool {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	w.target.Inspect(session.Request{
		Path:   path,
		Stamps: StampsFor(info),
		Dark:   w.dark,
		Scan:   w.scan(path),
	})
	return true
}

// StampsFor derives modification counters from file metadata. Without an
// editor buffer, the disk counter is the mtime and the document counter the
// size.
func StampsFor(info fs.FileInfo) session.Stamps {
	return session.Stamps{
		Document: uint64(info.Size()),
		Disk:     uint64(info.ModTime().UnixNano()),
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." && name != ".." {
		return true
	}
	_, skip := w.skip[name]
	return skip
}

// ignoredPath reports whether any path element below the root is ignored.
func (w *Watcher) ignoredPath(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.ignored(part) {
			return true
		}
	}
	return false
}
