// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // env keys read during the last Load
}

// NewLoader creates a new configuration loader. An empty configPath loads
// defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env overrides -> path expansion -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	l.mergeEnvConfig(&cfg)

	cfg.General.AppCache = expandPath(cfg.General.AppCache)
	cfg.Build.PuppetCode = expandPath(cfg.Build.PuppetCode)
	cfg.Agent.PuppetCode = expandPath(cfg.Agent.PuppetCode)
	if cfg.Metrics.Textfile != "" {
		cfg.Metrics.Textfile = expandPath(cfg.Metrics.Textfile)
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return ParseFile(data)
}

// ParseFile decodes a single strict YAML document into a FileConfig.
func ParseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) {
	if g := src.General; g != nil {
		setString(&dst.General.AppCache, g.AppCache)
		if g.Keep != nil {
			dst.General.Keep = *g.Keep
		}
	}
	if b := src.Build; b != nil {
		setString(&dst.Build.PuppetCode, b.PuppetCode)
		if b.Exclude != nil {
			dst.Build.Exclude = append([]string(nil), b.Exclude...)
		}
	}
	if a := src.Agent; a != nil {
		setString(&dst.Agent.PuppetCode, a.PuppetCode)
		setString(&dst.Agent.Environment, a.Environment)
	}
	if lg := src.Log; lg != nil {
		setString(&dst.Log.Level, lg.Level)
		setString(&dst.Log.Format, lg.Format)
	}
	if m := src.Metrics; m != nil {
		setString(&dst.Metrics.Textfile, m.Textfile)
	}
	if t := src.Telemetry; t != nil {
		if t.Enabled != nil {
			dst.Telemetry.Enabled = *t.Enabled
		}
		setString(&dst.Telemetry.Exporter, t.Exporter)
		setString(&dst.Telemetry.Endpoint, t.Endpoint)
		if t.SamplingRate != nil {
			dst.Telemetry.SamplingRate = *t.SamplingRate
		}
	}
	if w := src.Watch; w != nil {
		// An explicit empty listen disables the status server.
		if w.Listen != nil {
			dst.Watch.Listen = strings.TrimSpace(*w.Listen)
		}
		if w.Debounce != nil {
			dst.Watch.Debounce = *w.Debounce
		}
		if w.MinInterval != nil {
			dst.Watch.MinInterval = *w.MinInterval
		}
	}
}

func setString(dst *string, src *string) {
	if src != nil && strings.TrimSpace(*src) != "" {
		*dst = strings.TrimSpace(*src)
	}
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.General.AppCache = l.envString(EnvAppCache, cfg.General.AppCache)
	cfg.General.Keep = l.envInt(EnvKeep, cfg.General.Keep)
	cfg.Build.PuppetCode = l.envString(EnvBuildPuppetCode, cfg.Build.PuppetCode)
	cfg.Agent.PuppetCode = l.envString(EnvAgentPuppetCode, cfg.Agent.PuppetCode)
	cfg.Agent.Environment = l.envString(EnvAgentEnvironment, cfg.Agent.Environment)
	cfg.Log.Level = l.envString(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = l.envString(EnvLogFormat, cfg.Log.Format)
	cfg.Metrics.Textfile = l.envString(EnvMetricsTextfile, cfg.Metrics.Textfile)
	cfg.Telemetry.Enabled = l.envBool(EnvTelemetryEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvTelemetryExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvTelemetryEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvTelemetrySampling, cfg.Telemetry.SamplingRate)
	cfg.Watch.Listen = l.envString(EnvWatchListen, cfg.Watch.Listen)
	cfg.Watch.Debounce = l.envDuration(EnvWatchDebounce, cfg.Watch.Debounce)
	cfg.Watch.MinInterval = l.envDuration(EnvWatchMinInterval, cfg.Watch.MinInterval)
}
