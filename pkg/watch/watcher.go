// Package watch re-runs an action when watched files change.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDelay is how long the watcher waits for changes to settle.
const DefaultDelay = 500 * time.Millisecond

// Watcher collapses bursts of file events into single change notifications.
type Watcher struct {
	logger  zerolog.Logger
	delay   time.Duration
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]bool
}

// New creates a watcher. A non-positive delay selects DefaultDelay.
func New(logger zerolog.Logger, delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		logger:  logger,
		delay:   delay,
		watcher: w,
		files:   make(map[string]bool),
	}, nil
}

// Add watches files. Their directories are watched so that editors which
// replace a file by renaming over it are still seen.
func (w *Watcher) Add(files ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", file, err)
		}
		if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", file, err)
		}
		w.files[abs] = true
	}

	w.logger.Info().
		Int("files", len(w.files)).
		Msg("Started watching files")
	return nil
}

func (w *Watcher) watched(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

// Run calls onChange after watched files change and stay unchanged for the
// configured delay. Calls never overlap. Errors from onChange are logged and
// watching continues. Run returns when ctx is done and closes the watcher.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !w.watched(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("File changed")

			timer.Reset(w.delay)

		case <-timer.C:
			if err := onChange(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Change handler failed")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops watching without waiting for Run.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
