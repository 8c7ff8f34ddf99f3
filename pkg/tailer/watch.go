package tailer

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watcher turns filesystem events on the tailed file into wake-ups for the
// poll loop. The directory is watched so the file may not exist yet and may
// be replaced by rotation.
type watcher struct {
	fsw    *fsnotify.Watcher
	name   string
	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

func newWatcher(path string, logger *slog.Logger) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &watcher{
		fsw:    fsw,
		name:   filepath.Clean(abs),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run()
	return w, nil
}

// Wake delivers at most one pending wake-up at a time.
func (w *watcher) Wake() <-chan struct{} { return w.wake }

// Close stops the watcher and waits for its goroutine.
func (w *watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				select {
				case w.wake <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("file watch error", "err", err)
		}
	}
}
