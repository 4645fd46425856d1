// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"

	"github.com/AleutianAI/hecate-revert/services/telemetry"
)

// RevertConfig is the on-disk configuration of the revert CLI.
type RevertConfig struct {
	// Hecate: where deltas and histories are fetched from
	Hecate HecateConfig `yaml:"hecate"`

	// Revert: engine tuning and cache placement
	Revert EngineConfig `yaml:"revert"`

	Logging LoggingConfig `yaml:"logging"`

	Telemetry telemetry.Config `yaml:"telemetry"`
}

type HecateConfig struct {
	URL      string `yaml:"url" validate:"required"`   // e.g. http://localhost:8000
	Username string `yaml:"username,omitempty"`        // basic auth user
	Password string `yaml:"-"`                         // HECATE_PASSWORD only, never written to disk

	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"` // 0 disables limiting
}

type EngineConfig struct {
	Concurrency  int    `yaml:"concurrency" validate:"gte=1,lte=1000"`
	CacheBackend string `yaml:"cache_backend" validate:"oneof=badger sqlite memory"`
	CacheDir     string `yaml:"cache_dir,omitempty"` // defaults to the OS temp dir
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON   bool   `yaml:"json"`
	LogDir string `yaml:"log_dir,omitempty"`
}

func DefaultConfig() RevertConfig {
	return RevertConfig{
		Hecate: HecateConfig{
			URL:               "http://localhost:8000",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 0,
		},
		Revert: EngineConfig{
			Concurrency:  50,
			CacheBackend: "badger",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}
