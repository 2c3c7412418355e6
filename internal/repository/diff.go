// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package repository

import (
	"context"
	"os"
	"sort"

	"github.com/ManuGH/pupistry/internal/archive"
	"github.com/ManuGH/pupistry/internal/manifest"
)

// DiffResult lists entry paths that differ between two artifacts.
type DiffResult struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// Empty reports whether the artifacts have identical contents.
func (d DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares the contents of two published versions. Either version may
// be "latest".
func (r *Repository) Diff(ctx context.Context, from, to string) (DiffResult, error) {
	res := DiffResult{From: from, To: to}

	fromM, a, err := r.digest(ctx, from)
	if err != nil {
		return res, err
	}
	toM, b, err := r.digest(ctx, to)
	if err != nil {
		return res, err
	}
	res.From, res.To = fromM.Version, toM.Version

	for name, sum := range b {
		old, ok := a[name]
		switch {
		case !ok:
			res.Added = append(res.Added, name)
		case old != sum:
			res.Changed = append(res.Changed, name)
		}
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			res.Removed = append(res.Removed, name)
		}
	}
	sort.Strings(res.Added)
	sort.Strings(res.Removed)
	sort.Strings(res.Changed)
	return res, nil
}

func (r *Repository) digest(ctx context.Context, version string) (manifest.Manifest, map[string]string, error) {
	m, err := r.Resolve(ctx, version)
	if err != nil {
		return manifest.Manifest{}, nil, err
	}
	// #nosec G304 -- tarball path is derived from a validated version
	f, err := os.Open(r.TarballPath(m.Version))
	if err != nil {
		return manifest.Manifest{}, nil, err
	}
	defer func() { _ = f.Close() }()
	sums, err := archive.Digest(ctx, f)
	return m, sums, err
}
