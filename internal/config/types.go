// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	General   GeneralConfig   `yaml:"general" json:"general"`
	Build     BuildConfig     `yaml:"build" json:"build"`
	Agent     AgentConfig     `yaml:"agent" json:"agent"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`

	// Version is the binary version, not read from file.
	Version string `yaml:"-" json:"-"`
}

// GeneralConfig holds settings shared by the builder and the agent.
type GeneralConfig struct {
	AppCache string `yaml:"app_cache" json:"app_cache"` // workspace, artifact repository and history live here
	Keep     int    `yaml:"keep" json:"keep"`           // artifacts retained by prune
}

// BuildConfig holds builder settings.
type BuildConfig struct {
	// PuppetCode is the location of the puppet code tree to package.
	// Required by the fetch stage; empty means "not configured".
	PuppetCode string   `yaml:"puppetcode" json:"puppetcode"`
	Exclude    []string `yaml:"exclude" json:"exclude"`
}

// AgentConfig holds settings for installing artifacts on a node.
type AgentConfig struct {
	PuppetCode  string `yaml:"puppetcode" json:"puppetcode"`
	Environment string `yaml:"environment" json:"environment"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json|console
}

// MetricsConfig holds Prometheus textfile settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" json:"textfile"` // empty disables
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // grpc|http
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// WatchConfig holds settings for the rebuild-on-change loop.
type WatchConfig struct {
	Listen      string        `yaml:"listen" json:"listen"` // empty disables the status server
	Debounce    time.Duration `yaml:"debounce" json:"debounce"`
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
}

// FileConfig represents the YAML configuration structure. Pointer scalars
// distinguish an explicit zero from an absent key.
type FileConfig struct {
	General   *FileGeneral   `yaml:"general,omitempty"`
	Build     *FileBuild     `yaml:"build,omitempty"`
	Agent     *FileAgent     `yaml:"agent,omitempty"`
	Log       *FileLog       `yaml:"log,omitempty"`
	Metrics   *FileMetrics   `yaml:"metrics,omitempty"`
	Telemetry *FileTelemetry `yaml:"telemetry,omitempty"`
	Watch     *FileWatch     `yaml:"watch,omitempty"`
}

type FileGeneral struct {
	AppCache *string `yaml:"app_cache,omitempty"`
	Keep     *int    `yaml:"keep,omitempty"`
}

type FileBuild struct {
	PuppetCode *string  `yaml:"puppetcode,omitempty"`
	Exclude    []string `yaml:"exclude,omitempty"`
}

type FileAgent struct {
	PuppetCode  *string `yaml:"puppetcode,omitempty"`
	Environment *string `yaml:"environment,omitempty"`
}

type FileLog struct {
	Level  *string `yaml:"level,omitempty"`
	Format *string `yaml:"format,omitempty"`
}

type FileMetrics struct {
	Textfile *string `yaml:"textfile,omitempty"`
}

type FileTelemetry struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     *string  `yaml:"exporter,omitempty"`
	Endpoint     *string  `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"sampling_rate,omitempty"`
}

type FileWatch struct {
	Listen      *string        `yaml:"listen,omitempty"`
	Debounce    *time.Duration `yaml:"debounce,omitempty"`
	MinInterval *time.Duration `yaml:"min_interval,omitempty"`
}
