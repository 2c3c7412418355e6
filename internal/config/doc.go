// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config provides configuration management for pupistry.
//
// Configuration is resolved with precedence ENV > file > defaults. The YAML
// file is parsed strictly: unknown keys fail the load instead of being ignored.
package config
