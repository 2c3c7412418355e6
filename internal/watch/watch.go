// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package watch rebuilds artifacts whenever the puppet code tree changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuGH/pupistry/internal/artifact"
	"github.com/ManuGH/pupistry/internal/config"
	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/manifest"
)

// Builder runs one build.
type Builder interface {
	Build(ctx context.Context) (manifest.Manifest, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context) (manifest.Manifest, error)

// Build implements Builder.
func (f BuilderFunc) Build(ctx context.Context) (manifest.Manifest, error) {
	return f(ctx)
}

// Status is the state served on /healthz.
type Status struct {
	Status      string    `json:"status"` // starting|ok|degraded
	LastVersion string    `json:"last_version,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastBuildAt time.Time `json:"last_build_at,omitempty"`
	Builds      int       `json:"builds"`
	Failures    int       `json:"failures"`
	Building    bool      `json:"building"`
}

// Watcher debounces filesystem events into rate-limited builds.
type Watcher struct {
	root     string
	exclude  []string
	listen   string
	debounce time.Duration

	builder Builder
	limiter *rate.Limiter
	logger  zerolog.Logger
	onBuild func(context.Context, manifest.Manifest, error)

	trigger chan struct{}

	mu     sync.RWMutex
	status Status
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithOnBuild registers a callback invoked after every build attempt.
func WithOnBuild(fn func(context.Context, manifest.Manifest, error)) Option {
	return func(w *Watcher) { w.onBuild = fn }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New returns a Watcher for the build.puppetcode tree of cfg.
func New(cfg config.AppConfig, builder Builder, opts ...Option) (*Watcher, error) {
	root := strings.TrimSpace(cfg.Build.PuppetCode)
	if root == "" {
		return nil, &config.MissingFieldError{Field: "build.puppetcode"}
	}
	if config.HasScheme(root) {
		return nil, fmt.Errorf("%w: %s", artifact.ErrRemoteSource, root)
	}

	limit := rate.Inf
	if cfg.Watch.MinInterval > 0 {
		limit = rate.Every(cfg.Watch.MinInterval)
	}

	w := &Watcher{
		root:     root,
		exclude:  cfg.Build.Exclude,
		listen:   cfg.Watch.Listen,
		debounce: cfg.Watch.Debounce,
		builder:  builder,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   log.WithComponent("watch"),
		trigger:  make(chan struct{}, 1),
		status:   Status{Status: "starting"},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.debounce <= 0 {
		w.debounce = config.DefaultWatchDebounce
	}
	return w, nil
}

// Status returns a snapshot of the build status.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Run builds once, then on every settled change, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.addRecursive(fsw, w.root); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	w.logger.Info().
		Str(log.FieldEvent, "watch.started").
		Str(log.FieldSource, w.root).
		Dur("debounce", w.debounce).
		Str("listen", w.listen).
		Msg("watching puppet code for changes")

	w.requestBuild()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.eventLoop(ctx, fsw) })
	g.Go(func() error { return w.buildLoop(ctx) })
	if w.listen != "" {
		g.Go(func() error { return w.serve(ctx) })
	}

	err = g.Wait()
	w.logger.Info().Str(log.FieldEvent, "watch.stopped").Msg("watcher stopped")
	return err
}

// requestBuild queues a build; requests made while one is queued coalesce.
func (w *Watcher) requestBuild() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher) error {
	defer func() { _ = fsw.Close() }()

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsw, ev.Name); err != nil {
						w.logger.Warn().Err(err).Str(log.FieldPath, ev.Name).Msg("failed to watch new directory")
					}
				}
			}
			w.logger.Debug().Str(log.FieldPath, ev.Name).Str("op", ev.Op.String()).Msg("change detected")

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.requestBuild)
			timerMu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Str(log.FieldEvent, "watch.error").Msg("filesystem watcher error")
		}
	}
}

func (w *Watcher) buildLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.trigger:
		}
		if err := w.limiter.Wait(ctx); err != nil {
			// cancelled while waiting for the next slot
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.runBuild(ctx)
	}
}

func (w *Watcher) runBuild(ctx context.Context) {
	w.mu.Lock()
	w.status.Building = true
	w.mu.Unlock()

	m, err := w.builder.Build(ctx)

	w.mu.Lock()
	w.status.Building = false
	w.status.Builds++
	w.status.LastBuildAt = time.Now().UTC()
	if err != nil {
		w.status.Status = "degraded"
		w.status.Failures++
		w.status.LastError = err.Error()
	} else {
		w.status.Status = "ok"
		w.status.LastVersion = m.Version
		w.status.LastError = ""
	}
	w.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error().Err(err).Str(log.FieldEvent, "watch.build_failed").Msg("rebuild failed")
	} else if err == nil {
		w.logger.Info().
			Str(log.FieldEvent, "watch.build_complete").
			Str(log.FieldVersion, m.Version).
			Msg("rebuilt artifact")
	}
	if w.onBuild != nil {
		w.onBuild(ctx, m, err)
	}
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	return artifact.Excluded(w.exclude, rel) || strings.HasSuffix(path, ".pupistry-tmp")
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
