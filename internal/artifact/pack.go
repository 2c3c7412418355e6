// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/pupistry/internal/archive"
	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/manifest"
	"github.com/ManuGH/pupistry/internal/metrics"
	"github.com/ManuGH/pupistry/internal/telemetry"
)

// ErrWorkspaceEmpty is returned by Pack before a fetch has populated the workspace.
var ErrWorkspaceEmpty = errors.New("build workspace is empty, fetch puppet code first")

// Pack tarballs the workspace into a temporary file under the artifact
// directory and returns the manifest describing it together with the
// tarball path. The caller owns the file.
func (a *Artifact) Pack(ctx context.Context) (_ manifest.Manifest, _ string, err error) {
	ctx, span := a.tracer.Start(ctx, "artifact.pack",
		trace.WithAttributes(telemetry.StageAttributes(metrics.StagePack)...))
	start := time.Now()
	defer func() {
		metrics.ObserveStage(metrics.StagePack, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(telemetry.ErrorAttributes(err, metrics.StagePack)...)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	workspace := a.cfg.WorkspaceDir()
	entries, err := os.ReadDir(workspace)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest.Manifest{}, "", ErrWorkspaceEmpty
		}
		return manifest.Manifest{}, "", fmt.Errorf("read workspace: %w", err)
	}
	if len(entries) == 0 {
		return manifest.Manifest{}, "", ErrWorkspaceEmpty
	}

	if err := os.MkdirAll(a.cfg.ArtifactDir(), 0o750); err != nil {
		return manifest.Manifest{}, "", fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(a.cfg.ArtifactDir(), ".artifact-*.tar.gz")
	if err != nil {
		return manifest.Manifest{}, "", fmt.Errorf("create tarball: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	now := a.now().UTC().Truncate(time.Second)
	hash := sha256.New()
	counter := &countingWriter{}
	stats, err := archive.Write(ctx, workspace, io.MultiWriter(tmp, hash, counter), archive.WriteOptions{ModTime: now})
	if err != nil {
		_ = tmp.Close()
		return manifest.Manifest{}, "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return manifest.Manifest{}, "", fmt.Errorf("sync tarball: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return manifest.Manifest{}, "", fmt.Errorf("close tarball: %w", err)
	}

	envs, err := a.environments(workspace)
	if err != nil {
		return manifest.Manifest{}, "", err
	}

	buildID := log.BuildIDFromContext(ctx)
	if buildID == "" {
		buildID = uuid.NewString()
	}

	m := manifest.Manifest{
		Version:      strconv.FormatInt(now.Unix(), 10),
		BuildID:      buildID,
		Builder:      a.hostname,
		Source:       a.cfg.Build.PuppetCode,
		Checksum:     hex.EncodeToString(hash.Sum(nil)),
		Size:         counter.n,
		Files:        stats.Files,
		Environments: envs,
		CreatedAt:    now,
	}
	span.SetAttributes(telemetry.BuildAttributes(m.BuildID, m.Version, m.Source)...)
	span.SetAttributes(telemetry.ArtifactAttributes(m.Checksum, m.Size, m.Files, m.Environments)...)
	return m, tmpPath, nil
}

func (a *Artifact) environments(workspace string) ([]string, error) {
	if res, ok := a.LastFetch(); ok && res.Workspace == workspace {
		return res.Environments, nil
	}
	return DetectEnvironments(workspace)
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
