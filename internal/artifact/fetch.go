// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/pupistry/internal/config"
	"github.com/ManuGH/pupistry/internal/metrics"
	"github.com/ManuGH/pupistry/internal/telemetry"
)

// FetchResult describes a populated workspace.
type FetchResult struct {
	Source       string
	Workspace    string
	Files        int
	Bytes        int64
	Removed      int
	Environments []string
}

// Fetcher retrieves puppet code from source into workspace.
type Fetcher interface {
	Fetch(ctx context.Context, source, workspace string) (FetchResult, error)
}

// FetchR10k populates the build workspace with the latest puppet code from
// build.puppetcode. A missing setting is reported to the logger as fatal and
// returned as a *config.MissingFieldError.
func (a *Artifact) FetchR10k(ctx context.Context) (err error) {
	a.logger.Info("Fetching the latest Puppet code into the build workspace")

	ctx, span := a.tracer.Start(ctx, "artifact.fetch",
		trace.WithAttributes(telemetry.StageAttributes(metrics.StageFetch)...))
	start := time.Now()
	defer func() {
		metrics.ObserveStage(metrics.StageFetch, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(telemetry.ErrorAttributes(err, metrics.StageFetch)...)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	source := strings.TrimSpace(a.cfg.Build.PuppetCode)
	if source == "" {
		a.logger.Fatal("You must configure the build.puppetcode option in the configuration file")
		metrics.IncConfigError()
		return &config.MissingFieldError{Field: "build.puppetcode"}
	}

	res, err := a.fetcher.Fetch(ctx, source, a.cfg.WorkspaceDir())
	if err != nil {
		if errors.Is(err, ErrRemoteSource) {
			metrics.IncConfigError()
		}
		return fmt.Errorf("fetch puppet code from %s: %w", source, err)
	}

	if len(res.Environments) == 0 {
		a.logger.Warn("No puppet environments found in " + source)
	}

	a.mu.Lock()
	a.fetched = &res
	a.mu.Unlock()
	return nil
}
