package session

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fakeyudi/shlog/internal/lazyjson"
)

// Event is one command that appeared in a session file.
type Event struct {
	SessionID string
	Index     int
	Command   Command
}

// Watcher reports commands as they are flushed to the session files of a
// data directory.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	seen    map[string]int
}

// NewWatcher starts watching dir. Commands already on disk are not
// reported.
func NewWatcher(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{dir: dir, watcher: fw, seen: make(map[string]int)}
	infos, _ := List(dir, false, time.Now())
	for _, in := range infos {
		w.seen[in.Path] = in.Commands
	}
	return w, nil
}

// Run calls fn for every new command until ctx is cancelled. It closes the
// watcher on return.
func (w *Watcher) Run(ctx context.Context, fn func(Event)) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			id, ok := IDFromPath(event.Name)
			if !ok {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(w.seen, event.Name)
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.emit(event.Name, id, fn)
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
		}
	}
}

// emit reports the commands of path past the last one seen. Files caught
// mid-write fail to parse and are picked up on their next event.
func (w *Watcher) emit(path, id string, fn func(Event)) {
	f, err := lazyjson.Open(path)
	if err != nil {
		return
	}
	n := f.Len("cmds")
	for i := w.seen[path]; i < n; i++ {
		var cmd Command
		if err := f.Index("cmds", i).Decode(&cmd); err != nil {
			continue
		}
		fn(Event{SessionID: id, Index: i, Command: cmd})
	}
	if n > w.seen[path] {
		w.seen[path] = n
	}
}
