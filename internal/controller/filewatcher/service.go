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

// Package filewatcher hot-reloads addon modules when their files change.
package filewatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/tombee/addonhost/internal/engine"
	"github.com/tombee/addonhost/internal/log"
	"github.com/tombee/addonhost/internal/manifest"
	"github.com/tombee/addonhost/internal/registry"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// Reloader is the part of the engine the watcher drives.
type Reloader interface {
	IsCandidate(path string) bool
	SkipDir(path string) bool
	EnablePath(ctx context.Context, path string) (*engine.EnableResult, error)
	DisablePath(ctx context.Context, path string) (*engine.RemoveResult, error)
	EnableModule(ctx context.Context, name string) (*engine.EnableResult, error)
	Modules() []*registry.Record
}

// Options configures the Service.
type Options struct {
	// Root is the addon directory.
	Root string

	// Debounce is the quiet period per path before a reload. Zero reloads
	// on every event.
	Debounce time.Duration

	// ExcludePatterns are added to DefaultExcludePatterns.
	ExcludePatterns []string

	Logger *slog.Logger
}

// Service turns file events under the addon tree into lifecycle calls: a
// created or modified unit is enabled (replacing its live routes), a
// deleted or renamed unit is removed, and a changed manifest re-enables
// every enabled module it governs.
type Service struct {
	reloader  Reloader
	opts      Options
	watchRoot string
	patterns  *PatternMatcher
	logger    *slog.Logger
	mu        sync.Mutex
	watcher   *Watcher
	debouncer *Debouncer
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewService creates a file watcher service.
func NewService(r Reloader, opts Options) (*Service, error) {
	if r == nil {
		return nil, errors.New("filewatcher: reloader is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid addons directory: %w", err)
	}
	opts.Root = root
	// events arrive under the resolved path and are mapped back to root
	watchRoot, err := NormalizePath(root)
	if err != nil {
		return nil, fmt.Errorf("invalid addons directory: %w", err)
	}

	pm, err := NewPatternMatcher(root, append(DefaultExcludePatterns(), opts.ExcludePatterns...))
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		reloader:  r,
		opts:      opts,
		watchRoot: watchRoot,
		patterns:  pm,
		logger:    log.WithComponent(opts.Logger, "filewatcher-service"),
	}, nil
}

// Start begins watching. Call it only after the engine has started.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return errors.New("filewatcher: already started")
	}
	w, err := NewWatcher(s.watchRoot, func(dir string) bool {
		return s.reloader.SkipDir(s.hostPath(dir))
	}, s.opts.Logger)
	if err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.watcher = w
	s.debouncer = NewDebouncer(s.opts.Debounce, s.apply)
	s.done = make(chan struct{})

	w.Start(s.ctx)
	go s.handleEvents()

	s.logger.Info("file watcher service started",
		slog.String(log.PathKey, s.opts.Root),
		slog.Duration("debounce", s.opts.Debounce),
		slog.Int("directories", len(w.WatchList())))
	return nil
}

// Stop stops watching. Pending debounced events are applied first.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Stop()
	<-s.done
	s.debouncer.Stop()
	s.cancel()
	s.watcher = nil

	s.logger.Info("file watcher service stopped")
	return err
}

func (s *Service) handleEvents() {
	defer close(s.done)
	for e := range s.watcher.Events() {
		if e.IsDir {
			continue
		}
		if s.watchRoot != s.opts.Root {
			e = NewEvent(s.hostPath(e.Path), e.Op, e.IsDir)
		}
		if s.patterns.Ignored(e.Path) {
			recordPatternExcluded()
			log.Trace(s.logger, "file excluded by pattern", slog.String(log.PathKey, e.Path))
			continue
		}
		s.debouncer.Add(e)
	}
}

// apply runs the lifecycle call for one settled event.
func (s *Service) apply(e *Event) {
	ctx := s.ctx
	if slices.Contains(manifest.FileNames, e.Name) {
		s.reloadManifest(ctx, e)
		return
	}
	if !s.reloader.IsCandidate(e.Path) {
		return
	}

	if e.Gone() {
		res, err := s.reloader.DisablePath(ctx, e.Path)
		recordReload("remove", ignoreNotFound(err))
		if err != nil {
			s.logf(err, "failed to remove module after file change", e)
			return
		}
		s.logger.Info("removed module routes after file change",
			slog.String(log.PathKey, e.Path),
			slog.Int("removed", len(res.RemovedRoutes)))
		return
	}

	res, err := s.reloader.EnablePath(ctx, e.Path)
	recordReload("enable", err)
	if err != nil {
		s.logf(err, "failed to enable module after file change", e)
		return
	}
	s.logger.Info("reloaded module after file change",
		slog.String(log.ModuleKey, res.TechnicalName),
		slog.String("op", e.Op),
		slog.Int("routes", len(res.Routes)))
}

func (s *Service) reloadManifest(ctx context.Context, e *Event) {
	for _, rec := range s.reloader.Modules() {
		if rec.Status != registry.StatusEnabled || rec.Manifest == nil || rec.Manifest.Root != e.Dir {
			continue
		}
		_, err := s.reloader.EnableModule(ctx, rec.TechnicalName)
		recordReload("manifest", err)
		if err != nil {
			s.logf(err, "failed to reload module after manifest change", e)
			continue
		}
		s.logger.Info("reloaded module after manifest change",
			slog.String(log.ModuleKey, rec.TechnicalName),
			slog.String(log.PathKey, e.Path))
	}
}

func (s *Service) logf(err error, msg string, e *Event) {
	level := slog.LevelError
	if ignoreNotFound(err) == nil {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, msg,
		slog.String(log.PathKey, e.Path),
		slog.String("op", e.Op),
		log.Error(err))
}

// ignoreNotFound drops NotFound errors: the unit was never registered.
func ignoreNotFound(err error) error {
	var nf *hosterrors.NotFoundError
	if errors.As(err, &nf) {
		return nil
	}
	return err
}

// hostPath maps a path under the resolved watch root to the same path
// under the configured root.
func (s *Service) hostPath(path string) string {
	rel, err := filepath.Rel(s.watchRoot, path)
	if err != nil {
		return path
	}
	return filepath.Join(s.opts.Root, rel)
}

// Root returns the addon directory.
func (s *Service) Root() string {
	return s.opts.Root
}
