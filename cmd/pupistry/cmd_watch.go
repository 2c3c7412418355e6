// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pupistry/internal/artifact"
	"github.com/ManuGH/pupistry/internal/manifest"
	"github.com/ManuGH/pupistry/internal/repository"
	"github.com/ManuGH/pupistry/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rebuild and publish whenever build.puppetcode changes",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := repository.Open(a.cfg.ArtifactDir())
			if err != nil {
				return err
			}
			art := artifact.New(a.cfg)
			builder := watch.BuilderFunc(func(ctx context.Context) (manifest.Manifest, error) {
				return a.buildOnce(ctx, art, repo)
			})
			w, err := watch.New(a.cfg, builder,
				watch.WithOnBuild(func(context.Context, manifest.Manifest, error) { a.writeMetrics() }))
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
}
