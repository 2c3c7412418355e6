// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package archive writes and extracts the gzip-compressed tarballs that carry
// a puppet code tree.
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/ManuGH/pupistry/internal/fsutil"
)

// ErrUnsafePath is returned for entries that would land outside the tree.
var ErrUnsafePath = errors.New("unsafe archive entry")

// WriteOptions controls tarball generation.
type WriteOptions struct {
	// ModTime is stamped on every entry so identical trees produce identical bytes.
	ModTime time.Time
	// Level is the gzip level; zero selects gzip.DefaultCompression.
	Level int
}

// Stats summarizes an archive operation.
type Stats struct {
	Files    int
	Dirs     int
	Symlinks int
	Bytes    int64
}

// Write streams root as a tar.gz to w. Entries are emitted in lexical order
// with owner information stripped.
func Write(ctx context.Context, root string, w io.Writer, opts WriteOptions) (Stats, error) {
	var stats Stats

	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	gz, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return stats, fmt.Errorf("gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	modTime := opts.ModTime.UTC().Truncate(time.Second)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr := &tar.Header{
			Name:    name,
			Mode:    int64(info.Mode().Perm()),
			ModTime: modTime,
			Format:  tar.FormatPAX,
		}

		switch mode := info.Mode(); {
		case mode.IsDir():
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
			stats.Dirs++
			return tw.WriteHeader(hdr)

		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if !fsutil.LinkStaysInside(name, target) {
				return fmt.Errorf("%w: symlink %s -> %s", ErrUnsafePath, name, target)
			}
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = filepath.ToSlash(target)
			stats.Symlinks++
			return tw.WriteHeader(hdr)

		case mode.IsRegular():
			hdr.Typeflag = tar.TypeReg
			hdr.Size = info.Size()
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			n, err := copyFile(tw, path)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += n
			return nil

		default:
			// sockets, devices and pipes have no place in a code tree
			return nil
		}
	})
	if walkErr != nil {
		return stats, fmt.Errorf("archive %s: %w", root, walkErr)
	}

	if err := tw.Close(); err != nil {
		return stats, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return stats, fmt.Errorf("close gzip: %w", err)
	}
	return stats, nil
}

func copyFile(w io.Writer, path string) (int64, error) {
	// #nosec G304 -- path comes from walking the tree being archived
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	return io.Copy(w, f)
}

// Extract unpacks a tar.gz stream into dest, which is created if needed.
// Entries that escape dest, absolute names, hard links and device files fail
// with ErrUnsafePath.
func Extract(ctx context.Context, r io.Reader, dest string) (Stats, error) {
	var stats Stats

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return stats, fmt.Errorf("create %s: %w", dest, err)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()
	tr := tar.NewReader(gz)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("read tar: %w", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		rel, err := fsutil.CleanRel(hdr.Name)
		if err != nil {
			return stats, fmt.Errorf("%w: %v", ErrUnsafePath, err)
		}
		if rel == "." {
			continue
		}
		target, err := fsutil.ConfineRelPath(dest, rel)
		if err != nil {
			return stats, fmt.Errorf("%w: %v", ErrUnsafePath, err)
		}
		perm := fs.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, perm|0o700); err != nil {
				return stats, err
			}
			stats.Dirs++

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return stats, err
			}
			n, err := writeFile(target, tr, hdr.Size, perm)
			if err != nil {
				return stats, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			stats.Files++
			stats.Bytes += n

		case tar.TypeSymlink:
			if err := fsutil.ConfineLink(dest, rel, hdr.Linkname); err != nil {
				return stats, fmt.Errorf("%w: symlink %s -> %s: %v", ErrUnsafePath, hdr.Name, hdr.Linkname, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return stats, err
			}
			if err := os.Symlink(filepath.FromSlash(hdr.Linkname), target); err != nil {
				return stats, err
			}
			stats.Symlinks++

		default:
			return stats, fmt.Errorf("%w: %s has unsupported type %q", ErrUnsafePath, hdr.Name, hdr.Typeflag)
		}
	}
}

func writeFile(path string, r io.Reader, size int64, perm fs.FileMode) (int64, error) {
	// #nosec G304 -- path was confined to the extraction root
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm|0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyN(f, r, size)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// Digest returns a content fingerprint per entry of a tar.gz stream: the
// SHA-256 of regular files and "link:<target>" for symlinks. Directories
// are omitted.
func Digest(ctx context.Context, r io.Reader) (map[string]string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()
	tr := tar.NewReader(gz)

	out := make(map[string]string)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			h := sha256.New()
			if _, err := io.CopyN(h, tr, hdr.Size); err != nil {
				return nil, fmt.Errorf("hash %s: %w", hdr.Name, err)
			}
			out[hdr.Name] = hex.EncodeToString(h.Sum(nil))
		case tar.TypeSymlink:
			out[hdr.Name] = "link:" + hdr.Linkname
		}
	}
}
