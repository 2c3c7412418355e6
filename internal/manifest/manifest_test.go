// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manifest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Manifest {
	return Manifest{
		Version:      "1760000000",
		BuildID:      "7f1c2d9e-6a34-4d1b-9a50-1f0e2c3b4a59",
		Builder:      "build01",
		Source:       "/srv/puppet-code",
		Checksum:     strings.Repeat("ab", 32),
		Size:         2048,
		Files:        12,
		Environments: []string{"production", "staging"},
		CreatedAt:    time.Date(2025, 10, 9, 8, 53, 20, 0, time.UTC),
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "artifact.1760000000.tar.gz", ArtifactName("1760000000"))
	assert.Equal(t, "manifest.1760000000.yaml", FileName("1760000000"))
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName("1760000000"))
	want := sample()

	require.NoError(t, WriteFile(path, want))
	got, err := ReadFile(path)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestWriteFileReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), LatestName)
	first := sample()
	second := sample()
	second.Version = "1760000100"

	require.NoError(t, WriteFile(path, first))
	require.NoError(t, WriteFile(path, second))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1760000100", got.Version)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sample()))
	buf.WriteString("signature: deadbeef\n")

	_, err := Decode(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature")
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty document")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Manifest)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Manifest) {}},
		{
			name:    "non numeric version",
			mutate:  func(m *Manifest) { m.Version = "latest" },
			wantErr: []string{"version"},
		},
		{
			name:    "short checksum",
			mutate:  func(m *Manifest) { m.Checksum = "abc" },
			wantErr: []string{"checksum"},
		},
		{
			name:    "uppercase checksum",
			mutate:  func(m *Manifest) { m.Checksum = strings.Repeat("AB", 32) },
			wantErr: []string{"checksum"},
		},
		{
			name:    "zero size and bad version",
			mutate:  func(m *Manifest) { m.Size = 0; m.Version = "" },
			wantErr: []string{"size", "version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sample()
			tt.mutate(&m)
			err := m.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, field := range tt.wantErr {
				assert.Contains(t, err.Error(), field)
			}
		})
	}
}
