// Package watcher provides debounced file system watching, used by the
// Context Scout to detect out-of-band edits to a project root that a
// cached ProjectContext wouldn't otherwise know about.
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowctl/flowctl/internal/log"
)

// Watcher monitors a directory for changes and sends debounced
// notifications, filtering events down to the ones a caller cares about.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	debounce  time.Duration
	relevant  func(event fsnotify.Event) bool
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	// Root is the directory to watch.
	Root string
	// DebounceDur coalesces bursts of events into a single notification.
	DebounceDur time.Duration
	// Relevant filters which events trigger a notification. A nil value
	// means every Write or Create event is relevant.
	Relevant func(event fsnotify.Event) bool
}

// DefaultConfig returns sensible defaults for watching root.
func DefaultConfig(root string) Config {
	return Config{
		Root:        root,
		DebounceDur: 1 * time.Second,
	}
}

// New creates a new Watcher.
func New(cfg Config) (*Watcher, error) {
	log.Debug(log.CatWatcher, "creating watcher", "root", cfg.Root, "debounce", cfg.DebounceDur)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.ErrorErr(log.CatWatcher, "failed to create fsnotify watcher", err)
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	relevant := cfg.Relevant
	if relevant == nil {
		relevant = func(event fsnotify.Event) bool {
			return event.Op&(fsnotify.Write|fsnotify.Create) != 0
		}
	}

	return &Watcher{
		fsWatcher: fsw,
		root:      cfg.Root,
		debounce:  cfg.DebounceDur,
		relevant:  relevant,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the configured root.
// Returns a channel that receives a signal whenever a relevant change
// settles after the debounce window.
func (w *Watcher) Start() (<-chan struct{}, error) {
	if err := w.fsWatcher.Add(w.root); err != nil {
		log.ErrorErr(log.CatWatcher, "failed to watch directory", err, "root", w.root)
		return nil, fmt.Errorf("watching directory %s: %w", w.root, err)
	}

	log.Info(log.CatWatcher, "started watching", "root", w.root)
	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	log.Debug(log.CatWatcher, "stopping watcher")
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.relevant(event) {
				continue
			}

			log.Debug(log.CatWatcher, "file event received", "file", event.Name, "op", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-timerChan(timer):
			if pending {
				log.Debug(log.CatWatcher, "debounce complete, triggering refresh")
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "file watcher error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

// IsUnder reports whether path sits inside root, for a caller deciding
// whether an event applies to a particular project.
func IsUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	parentPrefix := ".." + string(filepath.Separator)
	return rel != ".." && !filepath.IsAbs(rel) && !(len(rel) >= len(parentPrefix) && rel[:len(parentPrefix)] == parentPrefix)
}
