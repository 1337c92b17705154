package filesystem

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
	"github.com/sophialabs/fixturemock/internal/infrastructure/services"
)

// ChangeFunc receives the fixture names, relative to the watched root, that
// changed during one settled burst of events. Names are sorted and unique.
type ChangeFunc func(changed []string)

// Watcher reports fixture edits below a root directory. Events are grouped
// until none has arrived for the debounce interval.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   ports.Logger
	fs       *fsnotify.Watcher
	notify   ChangeFunc

	quit     chan struct{}
	quitOnce sync.Once
	running  sync.WaitGroup
}

// NewWatcher registers root and every directory below it.
func NewWatcher(root string, debounce time.Duration, logger ports.Logger, notify ChangeFunc) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		fs:       fs,
		notify:   notify,
		quit:     make(chan struct{}),
	}
	if err := w.watchTree(root); err != nil {
		_ = fs.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Start() {
	w.running.Add(1)
	go func() {
		defer w.running.Done()
		w.run()
	}()
}

// Stop ends the watch and waits for an in-flight notification. Repeated
// calls are no-ops.
func (w *Watcher) Stop() {
	w.quitOnce.Do(func() {
		close(w.quit)
		_ = w.fs.Close()
	})
	w.running.Wait()
}

func (w *Watcher) run() {
	pending := make(map[string]struct{})
	settle := time.NewTimer(w.debounce)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-w.quit:
			return

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			name, ok := w.fixtureName(ev)
			if !ok {
				continue
			}
			w.logger.Debug("fixture change detected", "fixture", name, "op", ev.Op.String())
			pending[name] = struct{}{}
			settle.Reset(w.debounce)

		case <-settle.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)
			w.notify(changed)
		}
	}
}

// fixtureName maps an event to the fixture it touched. New directories are
// added to the watch list and produce no name.
func (w *Watcher) fixtureName(ev fsnotify.Event) (string, bool) {
	if !isFixture(ev.Name) {
		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := w.watchTree(ev.Name); err != nil {
					w.logger.Warn("cannot watch new directory", "dir", ev.Name, "error", err)
				}
			}
		}
		return "", false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return w.fs.Add(path)
	})
}

// isFixture skips hidden and editor backup files.
func isFixture(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return services.IsFixtureFile(name)
}
