// Package watcher implements --watch: re-run the one-shot scan pipeline
// whenever one of the positional source files changes on disk. It never
// maintains its own index or persistent state — it only debounces fsnotify
// events and calls back into the caller's existing scan function.
package watcher

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RescanFunc re-runs the scan pipeline over the full file set. It is called
// at most once per debounce window regardless of how many watched files
// changed within it.
type RescanFunc func()

// Watcher watches a fixed set of source files and debounces change events
// into calls to Rescan.
type Watcher struct {
	fw       *fsnotify.Watcher
	rescan   RescanFunc
	debounce time.Duration
}

// New creates a Watcher over files, invoking rescan (debounced by 500ms)
// after any of them changes.
func New(files []string, rescan RescanFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	for _, f := range files {
		if err := fw.Add(f); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", f, err)
		}
	}
	return &Watcher{fw: fw, rescan: rescan, debounce: 500 * time.Millisecond}, nil
}

// Watch blocks until done is closed or an unrecoverable error occurs,
// calling Rescan (debounced) whenever a watched file is written.
func (w *Watcher) Watch(done <-chan struct{}) error {
	var timer *time.Timer

	for {
		select {
		case <-done:
			return w.fw.Close()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				fmt.Fprintf(os.Stderr, "[watch] %s changed — rescanning\n", event.Name)
				w.rescan()
			})

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "[watch] error: %v\n", err)
		}
	}
}
