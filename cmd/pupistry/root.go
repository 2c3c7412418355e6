// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/pupistry/internal/config"
	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/metrics"
	"github.com/ManuGH/pupistry/internal/telemetry"
	"github.com/ManuGH/pupistry/internal/version"
)

const (
	envConfigPath = "PUPISTRY_CONFIG"

	// skipConfigAnnotation marks commands that load (or ignore) the
	// configuration themselves.
	skipConfigAnnotation = "pupistry/skip-config"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	configPath string
	logLevel   string

	cfg     config.AppConfig
	closers []func(context.Context) error

	stdout io.Writer
	stderr io.Writer
}

// usageError marks an error caused by invalid invocation (exit code 2).
type usageError struct {
	Err error
	cmd *cobra.Command
}

func (e *usageError) Error() string { return e.Err.Error() }
func (e *usageError) Unwrap() error { return e.Err }

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return &usageError{Err: err, cmd: cmd}
		}
		return nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pupistry",
		Short:         "Build, publish and install versioned puppet code artifacts",
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				a.configureLogging(config.Default().Log)
				return nil
			}
			return a.setup(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{Err: err, cmd: cmd}
	})

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "path to YAML configuration file (env "+envConfigPath+")")
	f.StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newBuildCmd(a),
		newFetchCmd(a),
		newListCmd(a),
		newVerifyCmd(a),
		newInstallCmd(a),
		newInstalledCmd(a),
		newDiffCmd(a),
		newPruneCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

// resolveConfigPath returns the --config flag, falling back to $PUPISTRY_CONFIG.
func (a *app) resolveConfigPath() string {
	if p := strings.TrimSpace(a.configPath); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(envConfigPath))
}

func (a *app) configureLogging(lc config.LogConfig) {
	level := lc.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	log.Configure(log.Config{
		Level:   level,
		Format:  lc.Format,
		Output:  a.stderr,
		Version: version.Version,
	})
}

// setup loads the configuration, reconfigures logging and starts tracing.
func (a *app) setup(ctx context.Context) error {
	path := a.resolveConfigPath()
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		metrics.IncConfigError()
		return fmt.Errorf("configuration error in %q: %w", path, err)
	}
	a.cfg = cfg
	a.configureLogging(cfg.Log)

	logger := log.WithComponent("cli")
	if path != "" {
		logger.Debug().
			Str(log.FieldEvent, "config.loaded").
			Str(log.FieldSource, "file").
			Str(log.FieldPath, path).
			Msg("loaded configuration from file")
	} else {
		logger.Debug().
			Str(log.FieldEvent, "config.loaded").
			Str(log.FieldSource, "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	host, _ := os.Hostname()
	provider, err := telemetry.NewProvider(ctx, telemetry.FromAppConfig(cfg, host))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, provider.Shutdown)
	return nil
}

// close flushes tracing and writes the metrics textfile.
func (a *app) close() {
	logger := log.WithComponent("cli")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn().Err(err).Msg("shutdown hook failed")
		}
	}
	a.writeMetrics()
}

func (a *app) writeMetrics() {
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		logger := log.WithComponent("cli")
		logger.Warn().
			Err(err).
			Str(log.FieldPath, a.cfg.Metrics.Textfile).
			Msg("failed to write metrics textfile")
	}
}
