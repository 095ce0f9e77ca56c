// Package watcher reports log files dropped into inbox directories once they
// stop changing.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// ErrNoDirectories is returned when no pattern resolved to a directory.
var ErrNoDirectories = errors.New("watcher: no directories to watch")

// Watcher monitors inbox directories using OS-level notifications. A file is
// sent on Ready after it has seen no writes for the settle period.
type Watcher struct {
	fsw    *fsnotify.Watcher
	Ready  chan string
	dirs   []string
	match  string
	settle time.Duration
	logger *slog.Logger

	pending map[string]time.Time
}

// New creates a Watcher for the directories matched by the glob patterns.
// Only files whose base name matches match are reported; empty matches all.
func New(patterns []string, match string, settle time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if match == "" {
		match = "*"
	}
	if !doublestar.ValidatePattern(match) {
		return nil, fmt.Errorf("watcher: bad file pattern %q", match)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		Ready:   make(chan string, 256),
		match:   match,
		settle:  settle,
		logger:  logger,
		pending: make(map[string]time.Time),
	}

	for _, pattern := range patterns {
		matches, err := expandDirs(pattern)
		if err != nil {
			logger.Warn("failed to expand pattern", "pattern", pattern, "err", err)
			continue
		}
		for _, m := range matches {
			abs, _ := filepath.Abs(m)
			if err := fsw.Add(abs); err != nil {
				logger.Warn("cannot watch directory", "dir", abs, "err", err)
				continue
			}
			w.dirs = append(w.dirs, abs)
		}
	}

	if len(w.dirs) == 0 {
		fsw.Close()
		return nil, ErrNoDirectories
	}
	return w, nil
}

// Start begins listening for file events. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Ready)

	tick := w.settle / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev, time.Now())
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "err", err)
		case now := <-ticker.C:
			for _, path := range w.due(now) {
				select {
				case w.Ready <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Dirs returns the directories being watched.
func (w *Watcher) Dirs() []string {
	return w.dirs
}

func (w *Watcher) handle(ev fsnotify.Event, now time.Time) {
	ok, _ := doublestar.Match(w.match, filepath.Base(ev.Name))
	if !ok {
		return
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, ev.Name)
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.pending[ev.Name] = now
	}
}

// due removes and returns the pending files that have been quiet for the
// settle period.
func (w *Watcher) due(now time.Time) []string {
	var out []string
	for path, last := range w.pending {
		if now.Sub(last) < w.settle {
			continue
		}
		delete(w.pending, path)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		out = append(out, path)
	}
	return out
}

// expandDirs resolves a glob pattern to matching directories.
// Supports recursive patterns like /var/spool/**/inbox via doublestar.
func expandDirs(pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, err
	}

	dirs := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m)
		}
	}
	return dirs, nil
}
