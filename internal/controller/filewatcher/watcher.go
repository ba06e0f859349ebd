// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package filewatcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/addonhost/internal/log"
)

// Watcher wraps fsnotify.Watcher and watches a directory tree. New
// directories are added as they appear and the files already inside them
// are reported as created, so a module copied in one step is seen whole.
type Watcher struct {
	root      string
	skipDir   func(path string) bool
	watcher   *fsnotify.Watcher
	eventChan chan *Event
	logger    *slog.Logger
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWatcher creates a recursive watcher rooted at root. Directories for
// which skipDir returns true are neither watched nor descended into.
func NewWatcher(root string, skipDir func(string) bool, logger *slog.Logger) (*Watcher, error) {
	if skipDir == nil {
		skipDir = func(string) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		skipDir: skipDir,
		watcher: fsw,
		// Buffered channel to prevent blocking
		eventChan: make(chan *Event, 256),
		logger:    log.WithComponent(logger, "filewatcher").With(slog.String("root", root)),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	dirs, err := WalkDirectory(root, skipDir)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			if dir == root {
				fsw.Close()
				return nil, fmt.Errorf("failed to watch path: %w", err)
			}
			w.logger.Warn("failed to watch subdirectory", slog.String(log.PathKey, dir), log.Error(err))
		}
	}
	return w, nil
}

// Start begins watching for file events.
func (w *Watcher) Start(ctx context.Context) {
	go w.eventLoop(ctx)
	w.logger.Info("file watcher started")
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
	return w.watcher.Close()
}

// Events returns a channel that receives file events. It is closed when
// the watcher stops.
func (w *Watcher) Events() <-chan *Event {
	return w.eventChan
}

// WatchList returns the directories currently watched.
func (w *Watcher) WatchList() []string {
	return w.watcher.WatchList()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.eventChan)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("file watcher stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("file watcher stopped")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Warn("file watcher event channel closed")
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.logger.Warn("file watcher error channel closed")
				return
			}
			recordError("watch")
			w.logger.Error("file watcher error", log.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	op, ok := opFor(event.Op)
	if !ok {
		log.Trace(w.logger, "ignoring unmapped event",
			slog.String("op", event.Op.String()),
			slog.String(log.PathKey, event.Name))
		return
	}

	isDir := false
	if op == OpCreated {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			isDir = true
			if w.skipDir(event.Name) {
				return
			}
			w.addTree(event.Name)
			return
		}
	}
	w.emit(NewEvent(event.Name, op, isDir))
}

// addTree watches a new directory and reports the files already in it.
func (w *Watcher) addTree(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.skipDir(path) {
				return fs.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String(log.PathKey, path), log.Error(err))
			}
			return nil
		}
		w.emit(NewEvent(path, OpCreated, false))
		return nil
	})
	if err != nil {
		w.logger.Warn("failed to walk new directory", slog.String(log.PathKey, dir), log.Error(err))
	}
}

func (w *Watcher) emit(e *Event) {
	recordEvent(e.Op)
	select {
	case w.eventChan <- e:
		w.logger.Debug("file event", slog.String("op", e.Op), slog.String(log.PathKey, e.Path))
	default:
		recordError("queue_full")
		w.logger.Warn("event channel full, dropping event", slog.String("op", e.Op), slog.String(log.PathKey, e.Path))
	}
}
