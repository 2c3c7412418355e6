// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pupistry/internal/repository"
)

const verifyConcurrency = 4

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List published artifacts, newest first",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := repository.Open(a.cfg.ArtifactDir())
			if err != nil {
				return err
			}
			ms, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(ms) == 0 {
				fmt.Fprintln(a.stdout, "no artifacts published")
				return nil
			}
			latest, err := repo.Latest(cmd.Context())
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tCREATED\tSIZE\tFILES\tENVIRONMENTS\tLATEST")
			for _, m := range ms {
				mark := ""
				if m.Version == latest.Version {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
					m.Version, m.CreatedAt.UTC().Format(time.RFC3339), m.Size, m.Files,
					strings.Join(m.Environments, ","), mark)
			}
			return tw.Flush()
		},
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "verify [version]",
		Short: "Recompute and check artifact checksums",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return &usageError{Err: errors.New("--all cannot be combined with a version"), cmd: cmd}
			}
			repo, err := repository.Open(a.cfg.ArtifactDir())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if !all {
				version := ""
				if len(args) == 1 {
					version = args[0]
				}
				m, err := repo.Resolve(ctx, version)
				if err != nil {
					return err
				}
				if err := repo.Verify(ctx, m.Version); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s: ok\n", m.Version)
				return nil
			}

			results, err := repo.VerifyAll(ctx, verifyConcurrency)
			if err != nil {
				return err
			}
			versions := make([]string, 0, len(results))
			for v := range results {
				versions = append(versions, v)
			}
			sort.Strings(versions)

			failed := 0
			for _, v := range versions {
				if results[v] != nil {
					failed++
					fmt.Fprintf(a.stdout, "%s: FAILED (%v)\n", v, results[v])
					continue
				}
				fmt.Fprintf(a.stdout, "%s: ok\n", v)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d artifacts failed verification", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "verify every published artifact")
	return cmd
}

func newInstallCmd(a *app) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "install [version]",
		Short: "Install an artifact (default latest) into the agent puppet code directory",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				dest = a.cfg.Agent.PuppetCode
			}
			if strings.TrimSpace(dest) == "" {
				return &usageError{Err: errors.New("no destination: set agent.puppetcode or pass --dest"), cmd: cmd}
			}
			version := ""
			if len(args) == 1 {
				version = args[0]
			}
			repo, err := repository.Open(a.cfg.ArtifactDir())
			if err != nil {
				return err
			}
			m, err := repo.Install(cmd.Context(), version, dest,
				repository.RequireEnvironment(a.cfg.Agent.Environment))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "installed artifact %s into %s\n", m.Version, dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "destination directory (default agent.puppetcode)")
	return cmd
}

func newInstalledCmd(a *app) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "installed",
		Short: "Show the artifact installed in the agent puppet code directory",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dest == "" {
				dest = a.cfg.Agent.PuppetCode
			}
			m, err := repository.Installed(dest)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Destination:\t%s\n", dest)
			fmt.Fprintf(tw, "Version:\t%s\n", m.Version)
			fmt.Fprintf(tw, "Checksum:\t%s\n", m.Checksum)
			fmt.Fprintf(tw, "Created:\t%s\n", m.CreatedAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(tw, "Builder:\t%s\n", m.Builder)
			fmt.Fprintf(tw, "Environments:\t%s\n", strings.Join(m.Environments, ","))
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "install directory to inspect (default agent.puppetcode)")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <from> <to>",
		Short: "Show files added, removed or changed between two artifacts",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := repository.Open(a.cfg.ArtifactDir())
			if err != nil {
				return err
			}
			d, err := repo.Diff(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if d.Empty() {
				fmt.Fprintf(a.stdout, "%s and %s are identical\n", d.From, d.To)
				return nil
			}
			for _, p := range d.Added {
				fmt.Fprintf(a.stdout, "+ %s\n", p)
			}
			for _, p := range d.Removed {
				fmt.Fprintf(a.stdout, "- %s\n", p)
			}
			for _, p := range d.Changed {
				fmt.Fprintf(a.stdout, "~ %s\n", p)
			}
			return nil
		},
	}
}

func newPruneCmd(a *app) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove the oldest artifacts beyond the retention count",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("keep") {
				keep = a.cfg.General.Keep
			}
			if keep < 1 {
				return &usageError{Err: fmt.Errorf("--keep must be at least 1, got %d", keep), cmd: cmd}
			}
			repo, err := repository.Open(a.cfg.ArtifactDir())
			if err != nil {
				return err
			}
			removed, err := repo.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, v := range removed {
				fmt.Fprintf(a.stdout, "removed %s\n", v)
			}
			fmt.Fprintf(a.stdout, "pruned %d artifacts, keeping %d\n", len(removed), keep)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "artifacts to retain (default general.keep)")
	return cmd
}
