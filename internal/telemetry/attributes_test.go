// SPDX-License-Identifier: MIT
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/pupistry/internal/config"
)

func TestBuildAttributes(t *testing.T) {
	tests := []struct {
		name    string
		buildID string
		version string
		source  string
		wantLen int
	}{
		{name: "all fields", buildID: "b-1", version: "1760000000", source: "/srv/code", wantLen: 3},
		{name: "only build id", buildID: "b-1", wantLen: 1},
		{name: "empty fields", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := BuildAttributes(tt.buildID, tt.version, tt.source)
			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.buildID != "" {
				verifyAttribute(t, attrs, BuildIDKey, tt.buildID)
			}
			if tt.version != "" {
				verifyAttribute(t, attrs, BuildVersionKey, tt.version)
			}
		})
	}
}

func TestStageAttributes(t *testing.T) {
	attrs := StageAttributes("fetch")
	if len(attrs) != 1 {
		t.Fatalf("Expected 1 attribute, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, StageNameKey, "fetch")
}

func TestArtifactAttributes(t *testing.T) {
	attrs := ArtifactAttributes("abc", 4096, 12, []string{"production", "staging"})

	if len(attrs) != 4 {
		t.Fatalf("Expected 4 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, ArtifactChecksumKey, "abc")
	verifyInt64Attribute(t, attrs, ArtifactSizeKey, 4096)
	verifyIntAttribute(t, attrs, ArtifactFilesKey, 12)

	for _, attr := range attrs {
		if attr.Key == ArtifactEnvironmentsKey {
			got := attr.Value.AsStringSlice()
			if len(got) != 2 || got[0] != "production" {
				t.Errorf("unexpected environments attribute %v", got)
			}
		}
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("boom"), "pack")

	if len(attrs) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(attrs))
	}
	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, ErrorTypeInternal)
	verifyAttribute(t, attrs, StageNameKey, "pack")

	if got := ErrorAttributes(context.Canceled, ""); len(got) != 2 {
		t.Errorf("Expected stage to be omitted when empty, got %v", got)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"canceled", fmt.Errorf("walk: %w", context.Canceled), ErrorTypeCanceled},
		{"timeout", context.DeadlineExceeded, ErrorTypeTimeout},
		{"missing setting", &config.MissingFieldError{Field: "build.puppetcode"}, ErrorTypeConfig},
		{"unknown key", fmt.Errorf("%w: bogus", config.ErrUnknownConfigField), ErrorTypeConfig},
		{"other", errors.New("disk full"), ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorType(tt.err); got != tt.want {
				t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyInt64Attribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int64) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != expectedValue {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
