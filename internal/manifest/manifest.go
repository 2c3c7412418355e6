// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package manifest describes a built artifact and its on-disk encoding.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/pupistry/internal/validate"
)

// LatestName is the manifest that points at the newest published artifact.
const LatestName = "manifest.latest.yaml"

// Manifest is the metadata published next to every artifact tarball.
type Manifest struct {
	Version      string    `yaml:"version" json:"version"`
	BuildID      string    `yaml:"build_id" json:"build_id"`
	Builder      string    `yaml:"builder" json:"builder"`
	Source       string    `yaml:"source" json:"source"`
	Checksum     string    `yaml:"checksum" json:"checksum"`
	Size         int64     `yaml:"size" json:"size"`
	Files        int       `yaml:"files" json:"files"`
	Environments []string  `yaml:"environments" json:"environments"`
	CreatedAt    time.Time `yaml:"created_at" json:"created_at"`
}

// ArtifactName returns the tarball file name for version.
func ArtifactName(version string) string {
	return "artifact." + version + ".tar.gz"
}

// FileName returns the manifest file name for version.
func FileName(version string) string {
	return "manifest." + version + ".yaml"
}

// Validate checks the fields a consumer relies on before trusting an artifact.
func (m Manifest) Validate() error {
	v := validate.New()
	if _, err := strconv.ParseInt(m.Version, 10, 64); err != nil {
		v.AddError("version", "must be numeric", m.Version)
	}
	if !isHexSHA256(m.Checksum) {
		v.AddError("checksum", "must be 64 lowercase hex characters", m.Checksum)
	}
	if m.Size <= 0 {
		v.AddError("size", "must be positive", m.Size)
	}
	if m.Files < 0 {
		v.AddError("files", "must not be negative", m.Files)
	}
	return v.Err()
}

func isHexSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Encode writes m as YAML.
func Encode(w io.Writer, m Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return enc.Close()
}

// Decode reads a single manifest document. Unknown keys are rejected.
func Decode(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, fmt.Errorf("decode manifest: empty document")
		}
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// WriteFile atomically replaces path with the encoded manifest.
func WriteFile(path string, m Manifest) error {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithStaticPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending manifest: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if _, err := pendingFile.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace manifest: %w", err)
	}
	return nil
}

// ReadFile decodes the manifest stored at path.
func ReadFile(path string) (Manifest, error) {
	// #nosec G304 -- manifest paths are derived from the repository directory
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer func() { _ = f.Close() }()

	m, err := Decode(f)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
