package binderfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher evicts cache entries for files changed outside the session, such as
// a git pull into the working tree
type Watcher struct {
	session *Session
	root    string
	fsw     *fsnotify.Watcher
	evicted chan string
	done    chan struct{}
	err     error
}

// Watch starts evicting cache entries for changes under dir. The session must
// be backed by a *DirFS. The watcher stops when ctx is done.
func (s *Session) Watch(ctx context.Context, dir string) (*Watcher, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	dfs, ok := s.io.FileSystem().(*DirFS)
	if !ok {
		return nil, fmt.Errorf("watch requires a DirFS, got %T", s.io.FileSystem())
	}
	if err := ValidateFilePath(dir); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		session: s,
		root:    dfs.Root(),
		fsw:     fsw,
		evicted: make(chan string, 64),
		done:    make(chan struct{}),
	}
	if err := w.addRecursive(dfs.resolve(dir)); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run(ctx)
	s.logger.Debug("watching", "path", dir)
	return w, nil
}

// Evicted delivers the tree path of every change that caused an eviction.
// Paths are dropped when nobody reads them.
func (w *Watcher) Evicted() <-chan string {
	return w.evicted
}

// Done is closed when the watcher has stopped
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that stopped the watcher, if any, after Done is closed
func (w *Watcher) Err() error {
	<-w.done
	return w.err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// missed events; nothing cached can be trusted
				w.session.cache.Clear()
				w.session.logger.Warn("watch overflow, cache cleared")
				continue
			}
			w.err = err
			w.session.logger.Error("watch failed", "error", err)
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	p := cleanPath(filepath.ToSlash(rel))

	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") && part != FolderMetaName {
			return
		}
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.session.logger.Warn("failed to watch new directory", "path", p, "error", err)
			}
		}
	}

	// the changed path may be a file or a whole directory
	w.session.evictSubtree(p)
	w.session.evictListings(p)
	if path.Base(p) == FolderMetaName {
		w.session.evictListings(path.Dir(p))
	}
	w.session.logger.Debug("evicted after external change", "path", p, "op", event.Op.String())

	select {
	case w.evicted <- p:
	default:
	}
}

// addRecursive watches dir and every non-hidden directory below it
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
