// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfineRelPath(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.Mkdir(filepath.Join(tmpDir, "subdir"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "safe.txt"), []byte("safe"), 0o600); err != nil {
		t.Fatal(err)
	}
	// link_outside points at the parent of the root
	if err := os.Symlink("..", filepath.Join(tmpDir, "link_outside")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		target   string
		wantErr  bool
		wantPath string
	}{
		{name: "existing file", target: "safe.txt", wantPath: "safe.txt"},
		{name: "new file in existing dir", target: "subdir/new.pp", wantPath: "subdir/new.pp"},
		{name: "new file in missing dir", target: "missing/dir/init.pp", wantPath: "missing/dir/init.pp"},
		{name: "dot dot in file name", target: "subdir/..hidden", wantPath: "subdir/..hidden"},
		{name: "traversal", target: "../etc/passwd", wantErr: true},
		{name: "cleaned traversal", target: "subdir/../../etc", wantErr: true},
		{name: "absolute", target: "/etc/passwd", wantErr: true},
		{name: "backslash", target: `subdir\..\..\x`, wantErr: true},
		{name: "through escaping symlink", target: "link_outside/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfineRelPath(tmpDir, tt.target)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ConfineRelPath(%q) = %q, want error", tt.target, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConfineRelPath(%q) unexpected error: %v", tt.target, err)
			}
			if !strings.HasSuffix(got, filepath.FromSlash(tt.wantPath)) {
				t.Errorf("ConfineRelPath(%q) = %q, want suffix %q", tt.target, got, tt.wantPath)
			}
		})
	}
}

func TestCleanRelTraversalIsTyped(t *testing.T) {
	_, err := CleanRel("a/../../b")
	if !errors.Is(err, ErrEscapesRoot) {
		t.Fatalf("expected ErrEscapesRoot, got %v", err)
	}
}

func TestLinkStaysInside(t *testing.T) {
	tests := []struct {
		rel    string
		target string
		want   bool
	}{
		{"production/modules/current", "v2", true},
		{"production/modules/current", "../../shared/mod", true},
		{"production/x", "../../../etc", false},
		{"link", "..", false},
		{"link", "/etc/passwd", false},
		{"link", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel+"->"+tt.target, func(t *testing.T) {
			if got := LinkStaysInside(tt.rel, tt.target); got != tt.want {
				t.Errorf("LinkStaysInside(%q, %q) = %v, want %v", tt.rel, tt.target, got, tt.want)
			}
		})
	}
}

func TestConfineLink(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := ConfineLink(root, "dir/up", ".."); err != nil {
		t.Fatalf("link to root rejected: %v", err)
	}
	if err := os.Symlink("..", filepath.Join(root, "dir", "up")); err != nil {
		t.Fatal(err)
	}
	// dir/up/up lives at root/up once dir/up is followed, so ".." leaves root
	if err := ConfineLink(root, "dir/up/up", ".."); !errors.Is(err, ErrEscapesRoot) {
		t.Fatalf("expected ErrEscapesRoot, got %v", err)
	}
	if err := ConfineLink(root, "dir/abs", "/etc"); !errors.Is(err, ErrEscapesRoot) {
		t.Fatalf("expected ErrEscapesRoot for absolute target, got %v", err)
	}
}
