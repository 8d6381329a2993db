// Package watcher reports changes to the module search path so the import
// index can be rebuilt.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultQuietPeriod is how long the search path must be idle before a batch
// is emitted. Package installs touch many files.
const DefaultQuietPeriod = 2 * time.Second

// Watcher watches the top level of each search path directory. Installing
// or removing a package shows up there as a package directory, a module file
// or a dist-info entry.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	log       zerolog.Logger
}

func NewWatcher(dirs []string, quiet time.Duration, log zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		debouncer: NewDebouncer(quiet),
		log:       log,
	}

	watched := 0
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := fsWatcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("failed to watch directory")
			continue
		}
		watched++
	}
	log.Debug().Int("dirs", watched).Msg("watching search path")
	return w, nil
}

// Events returns the channel that receives debounced events.
func (w *Watcher) Events() <-chan []DebouncedEvent {
	return w.debouncer.Output()
}

// Start listens for file system events until the watcher is closed. Call it
// in a goroutine.
func (w *Watcher) Start() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !Relevant(event.Name) {
		return
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Remove):
		op = OpRemove
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(event.Name, op)
}

// Relevant reports whether a change to path can alter the set of importable
// modules.
func Relevant(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || base == "__pycache__" {
		return false
	}
	switch ext := filepath.Ext(base); ext {
	case ".py", ".pth", ".so", ".pyd", ".egg-link":
		return true
	case ".dist-info", ".egg-info", "":
		return true
	default:
		return false
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}
