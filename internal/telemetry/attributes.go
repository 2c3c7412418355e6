// SPDX-License-Identifier: MIT

package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/pupistry/internal/config"
)

// Common attribute keys for build spans.
const (
	// Build attributes
	BuildIDKey      = "build.id"
	BuildVersionKey = "build.version"
	BuildSourceKey  = "build.source"

	// Stage attributes
	StageNameKey = "stage.name"

	// Artifact attributes
	ArtifactChecksumKey     = "artifact.checksum"
	ArtifactSizeKey         = "artifact.size_bytes"
	ArtifactFilesKey        = "artifact.files"
	ArtifactEnvironmentsKey = "artifact.environments"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// Error types recorded on failed spans.
const (
	ErrorTypeCanceled = "canceled"
	ErrorTypeTimeout  = "timeout"
	ErrorTypeConfig   = "config"
	ErrorTypeInternal = "internal"
)

// BuildAttributes creates build-level span attributes. Empty values are skipped.
func BuildAttributes(buildID, version, source string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if buildID != "" {
		attrs = append(attrs, attribute.String(BuildIDKey, buildID))
	}
	if version != "" {
		attrs = append(attrs, attribute.String(BuildVersionKey, version))
	}
	if source != "" {
		attrs = append(attrs, attribute.String(BuildSourceKey, source))
	}
	return attrs
}

// StageAttributes names a pipeline stage.
func StageAttributes(stage string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StageNameKey, stage),
	}
}

// ArtifactAttributes describes a packed artifact.
func ArtifactAttributes(checksum string, size int64, files int, environments []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ArtifactChecksumKey, checksum),
		attribute.Int64(ArtifactSizeKey, size),
		attribute.Int(ArtifactFilesKey, files),
		attribute.StringSlice(ArtifactEnvironmentsKey, environments),
	}
}

// ErrorAttributes marks a span of stage as failed and classifies err.
func ErrorAttributes(err error, stage string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, ErrorType(err)),
	}
	if stage != "" {
		attrs = append(attrs, attribute.String(StageNameKey, stage))
	}
	return attrs
}

// ErrorType maps err to one of the ErrorType constants.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, config.ErrMissingField), errors.Is(err, config.ErrUnknownConfigField):
		return ErrorTypeConfig
	default:
		return ErrorTypeInternal
	}
}
