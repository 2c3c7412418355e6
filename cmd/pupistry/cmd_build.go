// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ManuGH/pupistry/internal/artifact"
	"github.com/ManuGH/pupistry/internal/history"
	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/manifest"
	"github.com/ManuGH/pupistry/internal/repository"
)

func newBuildCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch, pack and publish a new artifact",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun {
				return a.dryRun(cmd.Context())
			}
			repo, err := repository.Open(a.cfg.ArtifactDir())
			if err != nil {
				return err
			}
			m, err := a.buildOnce(cmd.Context(), artifact.New(a.cfg), repo)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "published artifact %s (%s, %d files, %d bytes)\n",
				m.Version, m.Checksum, m.Files, m.Size)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "stop after packing and discard the tarball")
	return cmd
}

func newFetchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Refresh the build workspace from build.puppetcode",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			art := artifact.New(a.cfg)
			if err := art.FetchR10k(cmd.Context()); err != nil {
				return err
			}
			res, _ := art.LastFetch()
			fmt.Fprintf(a.stdout, "workspace %s: %d files copied, %d removed, environments %v\n",
				res.Workspace, res.Files, res.Removed, res.Environments)
			return nil
		},
	}
}

// buildOnce runs the full pipeline and records the attempt in the history ledger.
func (a *app) buildOnce(ctx context.Context, art *artifact.Artifact, repo *repository.Repository) (manifest.Manifest, error) {
	buildID := uuid.NewString()
	ctx = log.ContextWithBuildID(ctx, buildID)
	started := time.Now()

	m, err := art.Build(ctx, repo)

	entry := history.Entry{
		BuildID:   buildID,
		StartedAt: started.UTC(),
		Duration:  time.Since(started),
		Status:    history.StatusOK,
	}
	if err != nil {
		entry.Status = history.StatusFailed
		entry.Error = err.Error()
		var serr *artifact.StageError
		if errors.As(err, &serr) {
			entry.Stage = serr.Stage
		}
	} else {
		entry.Version = m.Version
		entry.Checksum = m.Checksum
		entry.Size = m.Size
	}
	a.recordHistory(ctx, entry)
	return m, err
}

func (a *app) recordHistory(ctx context.Context, e history.Entry) {
	logger := log.WithComponentFromContext(ctx, "cli")
	store, err := history.Open(a.cfg.HistoryPath())
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, a.cfg.HistoryPath()).Msg("build history unavailable")
		return
	}
	defer func() { _ = store.Close() }()
	// record even if the build was interrupted
	if err := store.Record(context.WithoutCancel(ctx), e); err != nil {
		logger.Warn().Err(err).Msg("failed to record build history")
	}
}

func (a *app) dryRun(ctx context.Context) error {
	art := artifact.New(a.cfg)
	if err := art.FetchR10k(ctx); err != nil {
		return err
	}
	m, tarball, err := art.Pack(ctx)
	if err != nil {
		return err
	}
	if err := os.Remove(tarball); err != nil {
		return fmt.Errorf("remove dry-run tarball: %w", err)
	}
	fmt.Fprintf(a.stdout, "dry run: version %s would contain %d files (%d bytes), environments %v\n",
		m.Version, m.Files, m.Size, m.Environments)
	return nil
}
