// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/pupistry/internal/config"
	"github.com/ManuGH/pupistry/internal/fsutil"
)

var (
	// ErrRemoteSource is returned for build.puppetcode values that name a
	// remote repository. Only local code trees are fetched.
	ErrRemoteSource = errors.New("remote puppet code sources are not supported")

	// ErrEscapingSymlink is returned when the code tree links outside itself.
	ErrEscapingSymlink = errors.New("symlink escapes puppet code tree")

	// ErrWorkspaceOverlap is returned when the workspace and the code tree
	// contain one another (general.app_cache inside build.puppetcode).
	ErrWorkspaceOverlap = errors.New("workspace overlaps puppet code tree")
)

// LocalFetcher mirrors a local directory into the workspace. Files removed
// upstream are removed from the workspace; unchanged files are not rewritten.
type LocalFetcher struct {
	// Exclude holds glob patterns matched against base names and
	// slash-separated relative paths.
	Exclude []string
}

// Fetch implements Fetcher.
func (f *LocalFetcher) Fetch(ctx context.Context, source, workspace string) (FetchResult, error) {
	res := FetchResult{Source: source, Workspace: workspace}

	if config.HasScheme(source) {
		return res, fmt.Errorf("%w: %s", ErrRemoteSource, source)
	}
	info, err := os.Stat(source)
	if err != nil {
		return res, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("source %s is not a directory", source)
	}
	if err := checkOverlap(source, workspace); err != nil {
		return res, err
	}
	if err := os.MkdirAll(workspace, 0o750); err != nil {
		return res, fmt.Errorf("create workspace: %w", err)
	}

	seen := make(map[string]struct{})
	walkErr := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if Excluded(f.Exclude, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		seen[rel] = struct{}{}
		dst := filepath.Join(workspace, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		switch mode := info.Mode(); {
		case mode.IsDir():
			if err := replaceNonDir(dst); err != nil {
				return err
			}
			return os.MkdirAll(dst, mode.Perm()|0o700)

		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if !fsutil.LinkStaysInside(filepath.ToSlash(rel), target) {
				return fmt.Errorf("%w: %s -> %s", ErrEscapingSymlink, rel, target)
			}
			return syncSymlink(dst, target)

		case mode.IsRegular():
			n, err := syncFile(path, dst, info)
			if err != nil {
				return fmt.Errorf("copy %s: %w", rel, err)
			}
			res.Files++
			res.Bytes += n
			return nil

		default:
			return nil
		}
	})
	if walkErr != nil {
		return res, walkErr
	}

	removed, err := prune(workspace, seen)
	if err != nil {
		return res, fmt.Errorf("prune workspace: %w", err)
	}
	res.Removed = removed

	envs, err := DetectEnvironments(workspace)
	if err != nil {
		return res, err
	}
	res.Environments = envs
	return res, nil
}

func checkOverlap(source, workspace string) error {
	src, err := resolvePath(source)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	ws, err := resolvePath(workspace)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}
	if within(src, ws) || within(ws, src) {
		return fmt.Errorf("%w: workspace %s, source %s", ErrWorkspaceOverlap, workspace, source)
	}
	return nil
}

// resolvePath makes p absolute and resolves symlinks in its longest
// existing prefix; p itself need not exist.
func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var rest []string
	for dir := abs; ; dir = filepath.Dir(dir) {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
	}
}

// within reports whether path is root or below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Excluded reports whether rel, a path relative to the code tree, matches
// one of patterns by base name or by slash-separated path.
func Excluded(patterns []string, rel string) bool {
	slashRel := filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, slashRel); ok {
			return true
		}
	}
	return false
}

// replaceNonDir removes dst when it exists as something other than a directory.
func replaceNonDir(dst string) error {
	info, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return os.Remove(dst)
}

func syncSymlink(dst, target string) error {
	if info, err := os.Lstat(dst); err == nil {
		if info.Mode()&fs.ModeSymlink != 0 {
			if cur, err := os.Readlink(dst); err == nil && cur == target {
				return nil
			}
		}
		if err := os.RemoveAll(dst); err != nil {
			return err
		}
	}
	return os.Symlink(target, dst)
}

// syncFile copies src to dst unless dst already matches by size and mtime.
func syncFile(src, dst string, info fs.FileInfo) (int64, error) {
	if cur, err := os.Lstat(dst); err == nil {
		if cur.Mode().IsRegular() && cur.Size() == info.Size() &&
			cur.ModTime().Equal(info.ModTime()) && cur.Mode().Perm() == info.Mode().Perm() {
			return info.Size(), nil
		}
		if err := os.RemoveAll(dst); err != nil {
			return 0, err
		}
	}

	// #nosec G304 -- src comes from walking the configured code tree
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".pupistry-tmp"
	// #nosec G304 -- tmp lives inside the workspace
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()|0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp, info.Mode().Perm())
	}
	if err == nil {
		err = os.Chtimes(tmp, info.ModTime(), info.ModTime())
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// prune removes workspace entries that were not seen in the source walk.
func prune(workspace string, seen map[string]struct{}) (int, error) {
	removed := 0
	err := filepath.WalkDir(workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(workspace, path)
		if err != nil || rel == "." {
			return err
		}
		if _, ok := seen[rel]; ok {
			return nil
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
		removed++
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	return removed, err
}

// DetectEnvironments lists top-level directories of root that look like
// puppet environments: they contain a manifests/ directory or a Puppetfile.
// Hidden directories are ignored. The result is sorted.
func DetectEnvironments(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	var envs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if fi, err := os.Stat(filepath.Join(dir, "manifests")); err == nil && fi.IsDir() {
			envs = append(envs, e.Name())
			continue
		}
		if fi, err := os.Stat(filepath.Join(dir, "Puppetfile")); err == nil && fi.Mode().IsRegular() {
			envs = append(envs, e.Name())
		}
	}
	return envs, nil
}
