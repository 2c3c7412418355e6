// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fsutil holds path confinement checks shared by the fetch and
// archive stages.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path or link target leaves its root.
var ErrEscapesRoot = errors.New("path escapes root")

// CleanRel normalizes a slash-separated relative path and rejects absolute
// paths, backslashes and ".." traversal.
func CleanRel(rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", rel)
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path must be relative: %s", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if isOutside(clean) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, rel)
	}
	return clean, nil
}

// ConfineRelPath joins root and rel and ensures the result, after resolving
// any symlinks already on disk, is still underneath root.
func ConfineRelPath(root, rel string) (string, error) {
	clean, err := CleanRel(rel)
	if err != nil {
		return "", err
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return resolveAndCheck(realRoot, filepath.Join(realRoot, clean))
}

// LinkStaysInside reports whether a symlink at rel (relative to its tree)
// pointing at target resolves lexically inside the same tree.
func LinkStaysInside(rel, target string) bool {
	if target == "" || filepath.IsAbs(target) || strings.Contains(target, "\\") {
		return false
	}
	joined := filepath.Join(filepath.Dir(filepath.FromSlash(rel)), filepath.FromSlash(target))
	return !isOutside(filepath.Clean(joined))
}

// ConfineLink checks that a symlink created at rel under root and pointing
// at target resolves inside root, following links already on disk.
func ConfineLink(root, rel, target string) error {
	if target == "" || filepath.IsAbs(target) || strings.Contains(target, "\\") {
		return fmt.Errorf("%w: link target %q", ErrEscapesRoot, target)
	}
	linkPath, err := ConfineRelPath(root, rel)
	if err != nil {
		return err
	}
	realRoot, err := resolveRoot(root)
	if err != nil {
		return err
	}
	_, err = resolveAndCheck(realRoot, filepath.Join(filepath.Dir(linkPath), filepath.FromSlash(target)))
	return err
}

func resolveRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		realRoot = absRoot
	}
	return realRoot, nil
}

// resolveAndCheck resolves fullPath, or its nearest existing parent when the
// path itself does not exist yet, and checks it against realRoot.
func resolveAndCheck(realRoot, fullPath string) (string, error) {
	realPath := fullPath
	if _, err := os.Lstat(fullPath); err == nil {
		rp, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		realPath = rp
	} else {
		dir := filepath.Dir(fullPath)
		if rp, err := filepath.EvalSymlinks(dir); err == nil {
			realPath = filepath.Join(rp, filepath.Base(fullPath))
		} else if _, statErr := os.Stat(dir); statErr == nil {
			return "", fmt.Errorf("failed to resolve parent path: %w", err)
		}
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if isOutside(rel) {
		return "", fmt.Errorf("%w via symlinks: %s", ErrEscapesRoot, realPath)
	}
	return realPath, nil
}

func isOutside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
