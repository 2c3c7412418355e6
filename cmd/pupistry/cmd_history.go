// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pupistry/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit int
		check bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent build attempts",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := history.Open(a.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			ctx := cmd.Context()

			if check {
				problems, err := store.Check(ctx)
				if err != nil {
					return err
				}
				if len(problems) > 0 {
					for _, p := range problems {
						fmt.Fprintln(a.stdout, p)
					}
					return fmt.Errorf("history database %s failed integrity check", a.cfg.HistoryPath())
				}
				fmt.Fprintln(a.stdout, "history database ok")
				return nil
			}

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "no builds recorded")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tVERSION\tDURATION\tSTAGE\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.StartedAt.UTC().Format(time.RFC3339), e.Status, e.Version,
					e.Duration.Round(time.Millisecond), e.Stage, e.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	cmd.Flags().BoolVar(&check, "check", false, "run an integrity check on the history database instead")
	return cmd
}
