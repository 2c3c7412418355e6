// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/pupistry/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package.
//
// build.puppetcode is deliberately optional here: agent-only hosts never set
// it, and the fetch stage reports its absence itself.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.AbsPath("general.app_cache", cfg.General.AppCache)
	v.Range("general.keep", cfg.General.Keep, 1, 1000)

	if strings.TrimSpace(cfg.Build.PuppetCode) != "" && !HasScheme(cfg.Build.PuppetCode) {
		v.AbsPath("build.puppetcode", cfg.Build.PuppetCode)
	}
	for _, pattern := range cfg.Build.Exclude {
		v.Glob("build.exclude", pattern)
	}

	v.AbsPath("agent.puppetcode", cfg.Agent.PuppetCode)
	v.NotEmpty("agent.environment", cfg.Agent.Environment)
	if strings.ContainsAny(cfg.Agent.Environment, `/\`) {
		v.AddError("agent.environment", "must be a plain directory name", cfg.Agent.Environment)
	}

	v.OneOf("log.level", strings.ToLower(cfg.Log.Level), []string{"trace", "debug", "info", "warn", "error"})
	v.OneOf("log.format", cfg.Log.Format, []string{"json", "console"})

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if cfg.Watch.Listen != "" {
		v.ListenAddr("watch.listen", cfg.Watch.Listen)
	}
	v.MinDuration("watch.debounce", cfg.Watch.Debounce, 100*time.Millisecond)
	v.MinDuration("watch.min_interval", cfg.Watch.MinInterval, 0)

	return v.Err()
}
