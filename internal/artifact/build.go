// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/manifest"
	"github.com/ManuGH/pupistry/internal/metrics"
	"github.com/ManuGH/pupistry/internal/telemetry"
)

// Publisher stores a packed artifact.
type Publisher interface {
	Publish(ctx context.Context, m manifest.Manifest, tarball string) error
}

// StageError attributes a build failure to the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Build runs fetch, pack and publish. The returned manifest is the published one.
func (a *Artifact) Build(ctx context.Context, repo Publisher) (m manifest.Manifest, err error) {
	buildID := log.BuildIDFromContext(ctx)
	if buildID == "" {
		buildID = uuid.NewString()
		ctx = log.ContextWithBuildID(ctx, buildID)
	}

	ctx, span := a.tracer.Start(ctx, "artifact.build",
		trace.WithAttributes(telemetry.BuildAttributes(buildID, "", a.cfg.Build.PuppetCode)...))
	logger := log.WithComponentFromContext(ctx, "artifact")
	started := time.Now()

	logger.Info().
		Str(log.FieldEvent, "artifact.build_start").
		Str(log.FieldSource, a.cfg.Build.PuppetCode).
		Str(log.FieldWorkspace, a.cfg.WorkspaceDir()).
		Msg("starting artifact build")

	defer func() {
		metrics.RecordBuild(err == nil)
		if err != nil {
			stage := ""
			var serr *StageError
			if errors.As(err, &serr) {
				stage = serr.Stage
			}
			span.RecordError(err)
			span.SetAttributes(telemetry.ErrorAttributes(err, stage)...)
			span.SetStatus(codes.Error, err.Error())
			logger.Error().Err(err).
				Str(log.FieldEvent, "artifact.build_failed").
				Dur("duration", time.Since(started)).
				Msg("artifact build failed")
		}
		span.End()
	}()

	if err := a.FetchR10k(ctx); err != nil {
		return manifest.Manifest{}, &StageError{Stage: metrics.StageFetch, Err: err}
	}

	m, tarball, err := a.Pack(ctx)
	if err != nil {
		return manifest.Manifest{}, &StageError{Stage: metrics.StagePack, Err: err}
	}

	if err := a.publish(ctx, repo, m, tarball); err != nil {
		_ = os.Remove(tarball)
		return manifest.Manifest{}, &StageError{Stage: metrics.StagePublish, Err: err}
	}

	metrics.RecordArtifact(m.Size, m.Files, m.CreatedAt)
	span.SetAttributes(telemetry.BuildAttributes("", m.Version, "")...)
	logger.Info().
		Str(log.FieldEvent, "artifact.build_complete").
		Str(log.FieldVersion, m.Version).
		Str(log.FieldChecksum, m.Checksum).
		Int64(log.FieldSizeBytes, m.Size).
		Int(log.FieldFiles, m.Files).
		Strs(log.FieldEnvironments, m.Environments).
		Dur("duration", time.Since(started)).
		Msg("artifact built")
	return m, nil
}

func (a *Artifact) publish(ctx context.Context, repo Publisher, m manifest.Manifest, tarball string) (err error) {
	ctx, span := a.tracer.Start(ctx, "artifact.publish",
		trace.WithAttributes(telemetry.StageAttributes(metrics.StagePublish)...))
	start := time.Now()
	defer func() {
		metrics.ObserveStage(metrics.StagePublish, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(telemetry.ErrorAttributes(err, metrics.StagePublish)...)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return repo.Publish(ctx, m, tarball)
}
