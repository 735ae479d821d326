// Package watch re-runs a callback when files in a directory change. Bursts
// of events (editors writing a file in several steps, a copy of many files)
// are coalesced into one call after a quiet period.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/54b3r/docqa-go/internal/logging"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 2 * time.Second

// ChangeFunc is called once per burst of relevant events.
type ChangeFunc func(ctx context.Context) error

// Watcher watches one directory, non-recursively.
type Watcher struct {
	// dir is the watched directory; sub-directories are not watched.
	dir string
	// debounce is the quiet period before onChange runs.
	debounce time.Duration
	// onChange runs once per burst of relevant events.
	onChange ChangeFunc
}

// New constructs a Watcher. debounce <= 0 selects DefaultDebounce.
func New(dir string, debounce time.Duration, onChange ChangeFunc) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watch: change callback must not be nil")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{dir: dir, debounce: debounce, onChange: onChange}, nil
}

// Run blocks until ctx is done. Callback errors are logged and watching
// continues; only a failure to start watching is returned.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: watch %s: %w", w.dir, err)
	}
	log.Info("watch: watching for document changes", slog.String("dir", w.dir), slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			log.Debug("watch: change detected", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch: watcher error", slog.Any("error", err))

		case <-timer.C:
			if err := w.onChange(ctx); err != nil {
				log.Error("watch: change handler failed", slog.Any("error", err))
			}
		}
	}
}

// relevant reports whether ev can change the set of indexed documents:
// creates, writes, removes and renames of regular files, dotfiles and
// symlinked files included, since ingestion indexes those too.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		info, err := os.Stat(ev.Name)
		if err != nil {
			// Gone again before we looked; the matching Remove follows.
			return false
		}
		return info.Mode().IsRegular()
	}
	return true
}
