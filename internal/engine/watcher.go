package engine

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher buffers unit-file names created or rewritten in the unit
// directory so the supervisor loop can pick them up without blocking.
type dirWatcher struct {
	w   *fsnotify.Watcher
	log *log.Logger
}

func newDirWatcher(dir string, logger *log.Logger) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &dirWatcher{w: w, log: logger}, nil
}

// Pending drains the queued events and returns the affected basenames,
// deduplicated. It never blocks.
func (d *dirWatcher) Pending() []string {
	seen := make(map[string]bool)
	var names []string
	for {
		select {
		case ev, ok := <-d.w.Events:
			if !ok {
				return names
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		case err, ok := <-d.w.Errors:
			if !ok {
				return names
			}
			d.log.Printf("unit directory watch: %v", err)
		default:
			return names
		}
	}
}

func (d *dirWatcher) Close() error { return d.w.Close() }
