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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvURL      = "HECATE_URL"
	EnvUsername = "HECATE_USERNAME"
	EnvPassword = "HECATE_PASSWORD"

	EnvEnvironment    = "HECATE_ENV"
	EnvTraceExporter  = "OTEL_TRACES_EXPORTER"
	EnvMetricExporter = "OTEL_METRICS_EXPORTER"
	EnvOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

var configValidate = validator.New()

// DefaultPath returns ~/.hecate/revert.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".hecate", "revert.yaml"), nil
}

// Load reads the config at path, creating it with defaults if it does not
// exist. An empty path uses DefaultPath. Keys missing from the file keep
// their defaults. Environment overrides are applied before validation.
// notice receives the first-run message and may be nil.
func Load(path string, notice io.Writer) (RevertConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return RevertConfig{}, err
		}
		path = p
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if notice != nil {
			fmt.Fprintf(notice, "First run detected, creating the config at %s\n", path)
		}
		if err := createDefault(path); err != nil {
			return RevertConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RevertConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RevertConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}

	ApplyEnv(&cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return RevertConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides the Hecate connection and telemetry settings from the
// environment. Empty values are ignored.
func ApplyEnv(cfg *RevertConfig, lookup func(string) (string, bool)) {
	overrides := []struct {
		key string
		dst *string
	}{
		{EnvURL, &cfg.Hecate.URL},
		{EnvUsername, &cfg.Hecate.Username},
		{EnvPassword, &cfg.Hecate.Password},
		{EnvEnvironment, &cfg.Telemetry.Environment},
		{EnvTraceExporter, &cfg.Telemetry.TraceExporter},
		{EnvMetricExporter, &cfg.Telemetry.MetricExporter},
		{EnvOTLPEndpoint, &cfg.Telemetry.OTLPEndpoint},
	}
	for _, o := range overrides {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.dst = v
		}
	}
}

// Validate checks field constraints.
func Validate(cfg RevertConfig) error {
	if err := configValidate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.Join(msgs...)
		}
		return err
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
