// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/ucserver/internal/handlers"
	"github.com/tomtom215/ucserver/internal/validation"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ucserver/config.yaml",
	"/etc/ucserver/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the server's environment variables:
// UCSERVER_SERVER_PORT -> server.port.
const envPrefix = "UCSERVER_"

// Load builds the configuration with layered sources: defaults, an
// optional YAML file, then environment variables, and validates the
// result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := normaliseSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists the fields environment variables supply as
// comma-separated strings.
var sliceConfigPaths = []string{
	"server.options",
	"cors.allow_origins",
	"cors.allow_methods",
}

// normaliseSliceFields converts comma-separated env values into slices.
func normaliseSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw := k.Get(path)
		s, ok := raw.(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		values := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to normalise %s: %w", path, err)
		}
	}
	return nil
}

// Validate checks structural validity plus the option names.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	for _, option := range c.Server.Options {
		if !handlers.ValidOption(option) {
			return fmt.Errorf("invalid option %q", option)
		}
	}
	// The restriction flows are useless without a PIN when deletion
	// confirmation escalates to authorisation later, but confirmation
	// alone needs none; only reject plainly contradictory settings.
	if c.Security.Enabled && c.Security.Iteration < 1 {
		return fmt.Errorf("security.iteration must be at least 1")
	}
	return nil
}
