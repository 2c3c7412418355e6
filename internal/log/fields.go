// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldBuildID = "build_id"
	FieldTraceID = "trace_id"
	FieldSpanID  = "span_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Artifact fields
	FieldVersion      = "version"
	FieldChecksum     = "checksum"
	FieldSizeBytes    = "size_bytes"
	FieldFiles        = "files"
	FieldEnvironments = "environments"

	// Path fields
	FieldPath        = "path"
	FieldSource      = "source"
	FieldWorkspace   = "workspace"
	FieldDestination = "destination"
)
