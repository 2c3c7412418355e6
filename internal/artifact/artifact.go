// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package artifact builds deployable puppet code artifacts: it fetches the
// configured code tree into a workspace, packs it into a checksummed tarball
// and hands it to a repository.
package artifact

import (
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/pupistry/internal/config"
	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/telemetry"
)

// Logger is the message-level logging collaborator of an Artifact.
// Fatal records a fatal event; it must not terminate the process.
type Logger interface {
	Info(msg string)
	Warn(msg string)
	Fatal(msg string)
}

// Artifact drives one build workspace.
type Artifact struct {
	cfg      config.AppConfig
	logger   Logger
	fetcher  Fetcher
	tracer   trace.Tracer
	now      func() time.Time
	hostname string

	mu      sync.Mutex
	fetched *FetchResult
}

// Option customizes an Artifact.
type Option func(*Artifact)

// WithLogger replaces the process-wide logger.
func WithLogger(l Logger) Option {
	return func(a *Artifact) { a.logger = l }
}

// WithFetcher replaces the local directory fetcher.
func WithFetcher(f Fetcher) Option {
	return func(a *Artifact) { a.fetcher = f }
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Artifact) { a.tracer = t }
}

// WithClock sets the time source used for versions and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Artifact) { a.now = now }
}

// WithHostname sets the builder name recorded in manifests.
func WithHostname(name string) Option {
	return func(a *Artifact) { a.hostname = name }
}

// New returns an Artifact for cfg.
func New(cfg config.AppConfig, opts ...Option) *Artifact {
	a := &Artifact{
		cfg:     cfg,
		logger:  log.NewLeveled(log.WithComponent("artifact")),
		fetcher: &LocalFetcher{Exclude: cfg.Build.Exclude},
		tracer:  telemetry.Tracer("github.com/ManuGH/pupistry/internal/artifact"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.hostname == "" {
		if h, err := os.Hostname(); err == nil {
			a.hostname = h
		} else {
			a.hostname = "unknown"
		}
	}
	return a
}

// Workspace is the directory FetchR10k populates.
func (a *Artifact) Workspace() string {
	return a.cfg.WorkspaceDir()
}

// LastFetch returns the result of the most recent successful fetch.
func (a *Artifact) LastFetch() (FetchResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetched == nil {
		return FetchResult{}, false
	}
	return *a.fetched, true
}
