// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ManuGH/pupistry/internal/archive"
	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/manifest"
	"github.com/ManuGH/pupistry/internal/metrics"
)

// InstalledName is the marker written into an install destination.
const InstalledName = ".pupistry.yaml"

type installOptions struct {
	environment string
}

// InstallOption customizes Install.
type InstallOption func(*installOptions)

// RequireEnvironment makes Install refuse artifacts that do not contain env.
// An empty env disables the check.
func RequireEnvironment(env string) InstallOption {
	return func(o *installOptions) { o.environment = env }
}

// Install verifies version (latest when empty) and replaces dest with its
// contents. The new tree is extracted next to dest and swapped in with
// renames; the previous tree is kept as dest.previous until the swap succeeds.
func (r *Repository) Install(ctx context.Context, version, dest string, opts ...InstallOption) (m manifest.Manifest, err error) {
	var o installOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()
	defer func() {
		metrics.ObserveStage(metrics.StageInstall, time.Since(start), err)
		metrics.RecordInstall(err == nil)
	}()

	m, err = r.Resolve(ctx, version)
	if err != nil {
		return manifest.Manifest{}, err
	}
	if o.environment != "" && !slices.Contains(m.Environments, o.environment) {
		return manifest.Manifest{}, fmt.Errorf("%w: %s has %v, want %q",
			ErrMissingEnvironment, m.Version, m.Environments, o.environment)
	}
	if err := r.verify(m); err != nil {
		return manifest.Manifest{}, err
	}

	dest = filepath.Clean(dest)
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return manifest.Manifest{}, fmt.Errorf("create %s: %w", parent, err)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+".staging-")
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := r.extract(ctx, m, staging); err != nil {
		return manifest.Manifest{}, err
	}
	// MkdirTemp creates 0700; the code tree must be readable by the agent
	if err := os.Chmod(staging, 0o755); err != nil {
		return manifest.Manifest{}, err
	}
	if err := manifest.WriteFile(filepath.Join(staging, InstalledName), m); err != nil {
		return manifest.Manifest{}, err
	}

	if err := swapDir(staging, dest); err != nil {
		return manifest.Manifest{}, err
	}

	logger := log.WithComponentFromContext(ctx, "repository")
	logger.Info().
		Str(log.FieldEvent, "repository.installed").
		Str(log.FieldVersion, m.Version).
		Str(log.FieldDestination, dest).
		Strs(log.FieldEnvironments, m.Environments).
		Msg("artifact installed")
	return m, nil
}

func (r *Repository) extract(ctx context.Context, m manifest.Manifest, dest string) error {
	// #nosec G304 -- tarball path is derived from a validated version
	f, err := os.Open(r.TarballPath(m.Version))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := archive.Extract(ctx, f, dest); err != nil {
		return fmt.Errorf("extract %s: %w", m.Version, err)
	}
	return nil
}

// swapDir replaces dest with staging, restoring the old tree on failure.
func swapDir(staging, dest string) error {
	previous := dest + ".previous"
	if err := os.RemoveAll(previous); err != nil {
		return fmt.Errorf("remove stale %s: %w", previous, err)
	}

	hadOld := false
	if _, err := os.Lstat(dest); err == nil {
		if err := os.Rename(dest, previous); err != nil {
			return fmt.Errorf("move current tree aside: %w", err)
		}
		hadOld = true
	}

	if err := os.Rename(staging, dest); err != nil {
		if hadOld {
			_ = os.Rename(previous, dest)
		}
		return fmt.Errorf("activate new tree: %w", err)
	}

	if hadOld {
		if err := os.RemoveAll(previous); err != nil {
			return fmt.Errorf("remove previous tree: %w", err)
		}
	}
	return nil
}

// Installed returns the manifest of the artifact currently installed in dest.
func Installed(dest string) (manifest.Manifest, error) {
	m, err := manifest.ReadFile(filepath.Join(dest, InstalledName))
	if errors.Is(err, os.ErrNotExist) {
		return manifest.Manifest{}, fmt.Errorf("%w: nothing installed in %s", ErrNotFound, dest)
	}
	return m, err
}
