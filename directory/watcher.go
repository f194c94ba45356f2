package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to the watched directory. Raw fs events are
// debounced and coalesced: however many arrive in a burst (a copy of many
// files, an unpacked archive), the events channel delivers at most one
// pending signal, and the receiver is expected to rebuild its listing
// wholesale on each one.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	events    chan struct{}
	stop      chan struct{}
	doneCh    chan struct{}

	debounceDelay time.Duration

	mu       sync.Mutex
	debounce *time.Timer
	closed   bool
}

// NewWatcher starts watching the given directory.
func NewWatcher(dir string) (*Watcher, error) {
	return newWatcher(dir, 100*time.Millisecond)
}

func newWatcher(dir string, debounceDelay time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("couldn't create fs watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("couldn't watch %q: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher:     fsWatcher,
		events:        make(chan struct{}, 1),
		stop:          make(chan struct{}),
		doneCh:        make(chan struct{}),
		debounceDelay: debounceDelay,
	}
	go w.run()

	return w, nil
}

func (w *Watcher) run() {
	defer func() {
		w.mu.Lock()
		w.closed = true
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()

		close(w.events)
		close(w.doneCh)
	}()

	for {
		select {
		case <-w.stop:
			return

		case _, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.debounce = time.AfterFunc(w.debounceDelay, func() {
				w.mu.Lock()
				defer w.mu.Unlock()

				if w.closed {
					return
				}
				select {
				case w.events <- struct{}{}:
				default: // a signal is already pending
				}
			})
			w.mu.Unlock()

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Events returns the channel that signals directory changes. It is closed
// on shutdown.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Shutdown stops watching and waits for the event loop to exit.
func (w *Watcher) Shutdown(ctx context.Context) error {
	close(w.stop)
	w.fsWatcher.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.doneCh:
		return nil
	}
}
