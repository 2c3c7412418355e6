// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package repository stores published artifacts in a local directory:
//
//	artifact.<version>.tar.gz
//	manifest.<version>.yaml
//	manifest.latest.yaml
//
// Writers serialize on an in-process mutex; manifests are replaced atomically
// so concurrent readers always observe a complete file.
package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/pupistry/internal/log"
	"github.com/ManuGH/pupistry/internal/manifest"
)

// Repository is a directory of published artifacts.
type Repository struct {
	dir string
	mu  sync.Mutex
}

// Open returns the repository rooted at dir, creating it if needed.
func Open(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create repository %s: %w", dir, err)
	}
	return &Repository{dir: dir}, nil
}

// TarballPath returns where the tarball for version lives.
func (r *Repository) TarballPath(version string) string {
	return filepath.Join(r.dir, manifest.ArtifactName(version))
}

// Publish moves tarball into the repository under m.Version, writes its
// manifest and points manifest.latest.yaml at it.
func (r *Repository) Publish(ctx context.Context, m manifest.Manifest, tarball string) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dest := r.TarballPath(m.Version)
	manifestPath := filepath.Join(r.dir, manifest.FileName(m.Version))
	for _, p := range []string{dest, manifestPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, m.Version)
		}
	}

	if err := moveFile(tarball, dest); err != nil {
		return fmt.Errorf("store tarball: %w", err)
	}
	if err := manifest.WriteFile(manifestPath, m); err != nil {
		_ = os.Remove(dest)
		return err
	}
	if err := manifest.WriteFile(filepath.Join(r.dir, manifest.LatestName), m); err != nil {
		// an unreferenced version would show up in List as published
		_ = os.Remove(manifestPath)
		_ = os.Remove(dest)
		return fmt.Errorf("update latest: %w", err)
	}

	logger := log.WithComponentFromContext(ctx, "repository")
	logger.Info().
		Str(log.FieldEvent, "repository.published").
		Str(log.FieldVersion, m.Version).
		Str(log.FieldChecksum, m.Checksum).
		Str(log.FieldPath, dest).
		Msg("artifact published")
	return nil
}

// List returns every published manifest, newest first.
func (r *Repository) List(ctx context.Context) ([]manifest.Manifest, error) {
	paths, err := filepath.Glob(filepath.Join(r.dir, "manifest.*.yaml"))
	if err != nil {
		return nil, err
	}
	out := make([]manifest.Manifest, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if filepath.Base(p) == manifest.LatestName {
			continue
		}
		m, err := manifest.ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return versionNumber(out[i].Version) > versionNumber(out[j].Version)
	})
	return out, nil
}

// Latest returns the manifest referenced by manifest.latest.yaml.
func (r *Repository) Latest(_ context.Context) (manifest.Manifest, error) {
	m, err := manifest.ReadFile(filepath.Join(r.dir, manifest.LatestName))
	if errors.Is(err, os.ErrNotExist) {
		return manifest.Manifest{}, fmt.Errorf("%w: no artifact has been published", ErrNotFound)
	}
	return m, err
}

// Get returns the manifest for version.
func (r *Repository) Get(_ context.Context, version string) (manifest.Manifest, error) {
	if !validVersion(version) {
		return manifest.Manifest{}, fmt.Errorf("%w: invalid version %q", ErrNotFound, version)
	}
	m, err := manifest.ReadFile(filepath.Join(r.dir, manifest.FileName(version)))
	if errors.Is(err, os.ErrNotExist) {
		return manifest.Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, version)
	}
	return m, err
}

// Resolve returns the manifest for version, or the latest one when version is empty.
func (r *Repository) Resolve(ctx context.Context, version string) (manifest.Manifest, error) {
	if version == "" || version == "latest" {
		return r.Latest(ctx)
	}
	return r.Get(ctx, version)
}

// Verify recomputes the tarball checksum of version against its manifest.
func (r *Repository) Verify(ctx context.Context, version string) error {
	m, err := r.Get(ctx, version)
	if err != nil {
		return err
	}
	return r.verify(m)
}

func (r *Repository) verify(m manifest.Manifest) error {
	// #nosec G304 -- tarball path is derived from a validated version
	f, err := os.Open(r.TarballPath(m.Version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: tarball for %s is missing", ErrNotFound, m.Version)
		}
		return err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return fmt.Errorf("hash tarball: %w", err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != m.Checksum || n != m.Size {
		return fmt.Errorf("%w: %s has sha256 %s (%d bytes), manifest says %s (%d bytes)",
			ErrChecksumMismatch, m.Version, got, n, m.Checksum, m.Size)
	}
	return nil
}

// VerifyAll verifies every published artifact with at most concurrency
// workers and returns the per-version result. A nil entry means the artifact
// is intact.
func (r *Repository) VerifyAll(ctx context.Context, concurrency int) (map[string]error, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu      sync.Mutex
		results = make(map[string]error, len(list))
		g       errgroup.Group
	)
	g.SetLimit(concurrency)
	for _, m := range list {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			verr := r.verify(m)
			mu.Lock()
			results[m.Version] = verr
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Prune removes the oldest artifacts so that at most keep remain. The latest
// artifact is never removed. It returns the removed versions.
func (r *Repository) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	latest := ""
	if m, err := r.Latest(ctx); err == nil {
		latest = m.Version
	}

	var removed []string
	kept := 0
	for _, m := range list {
		if kept < keep || m.Version == latest {
			kept++
			continue
		}
		if err := os.Remove(r.TarballPath(m.Version)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		if err := os.Remove(filepath.Join(r.dir, manifest.FileName(m.Version))); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed = append(removed, m.Version)
	}

	if len(removed) > 0 {
		logger := log.WithComponentFromContext(ctx, "repository")
		logger.Info().
			Str(log.FieldEvent, "repository.pruned").
			Strs("versions", removed).
			Int("kept", kept).
			Msg("pruned old artifacts")
	}
	return removed, nil
}

func validVersion(v string) bool {
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func versionNumber(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

// moveFile renames src to dst, copying when they sit on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	// #nosec G304 -- src is a tarball produced by the pack stage
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	// #nosec G304 -- dst is inside the repository
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
