// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults
const (
	DefaultAppCache         = "~/.pupistry/cache"
	DefaultKeep             = 10
	DefaultAgentPuppetCode  = "/etc/puppetlabs/code/environments"
	DefaultAgentEnvironment = "production"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultExporter         = "grpc"
	DefaultEndpoint         = "localhost:4317"
	DefaultWatchListen      = "127.0.0.1:9109"
	DefaultWatchDebounce    = 2 * time.Second
	DefaultWatchMinInterval = 30 * time.Second
)

// Default returns the built-in configuration before file and env overrides.
func Default() AppConfig {
	return AppConfig{
		General: GeneralConfig{
			AppCache: DefaultAppCache,
			Keep:     DefaultKeep,
		},
		Build: BuildConfig{
			Exclude: []string{".git"},
		},
		Agent: AgentConfig{
			PuppetCode:  DefaultAgentPuppetCode,
			Environment: DefaultAgentEnvironment,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultExporter,
			Endpoint:     DefaultEndpoint,
			SamplingRate: 1.0,
		},
		Watch: WatchConfig{
			Listen:      DefaultWatchListen,
			Debounce:    DefaultWatchDebounce,
			MinInterval: DefaultWatchMinInterval,
		},
	}
}

// WorkspaceDir is where the fetch stage assembles the puppet code tree.
func (c AppConfig) WorkspaceDir() string {
	return filepath.Join(c.General.AppCache, "puppetcode")
}

// ArtifactDir is the local artifact repository.
func (c AppConfig) ArtifactDir() string {
	return filepath.Join(c.General.AppCache, "artifacts")
}

// HistoryPath is the build history database.
func (c AppConfig) HistoryPath() string {
	return filepath.Join(c.General.AppCache, "history.db")
}

// HasScheme reports whether s looks like a remote location rather than a path.
func HasScheme(s string) bool {
	if strings.Contains(s, "://") {
		return true
	}
	// scp-like git syntax: user@host:path
	if at := strings.Index(s, "@"); at > 0 {
		if colon := strings.Index(s[at:], ":"); colon > 0 && !strings.HasPrefix(s, "/") {
			return true
		}
	}
	return false
}

// expandPath expands ${VAR}, $VAR and a leading "~/" and makes the result absolute.
// Values that carry a scheme are returned after env expansion only.
func expandPath(p string) string {
	p = os.ExpandEnv(strings.TrimSpace(p))
	if p == "" || HasScheme(p) {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return p
}
