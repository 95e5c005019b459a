// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package config loads the server configuration bag with Koanf's layered
// sources: struct defaults, then an optional YAML file, then environment
// variables. The loaded bag is validated before the server starts.
package config

import (
	"time"
)

// Config is the complete configuration bag.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	CORS     CORSConfig     `koanf:"cors"`
	Events   EventsConfig   `koanf:"events"`
	Storage  StorageConfig  `koanf:"storage"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig identifies the server and its listener.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`

	Name     string `koanf:"name" validate:"required"`
	UUID     string `koanf:"uuid" validate:"required,uuid"`
	LogoHref string `koanf:"logo_href"`

	// Options lists the optional resources to enable.
	Options []string `koanf:"options"`

	// Metrics exposes the Prometheus /metrics endpoint.
	Metrics bool `koanf:"metrics"`

	// RateLimitRequests per RateLimitWindow per client IP; zero
	// disables rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig controls the UC security scheme and restriction flows.
type SecurityConfig struct {
	// Enabled switches the per-request authentication scheme on.
	Enabled bool `koanf:"enabled"`

	// Iteration is the PBKDF2 iteration count for request digests.
	Iteration int `koanf:"iteration" validate:"min=1"`
	// NcLimit retires a nonce after this many uses.
	NcLimit int `koanf:"nc_limit" validate:"min=1"`
	// NonceTimeout is the validity window of minted nonces.
	NonceTimeout time.Duration `koanf:"nonce_timeout"`

	// PIN keys the restriction authorisation flow.
	PIN string `koanf:"pin"`
	// ConfirmStorageDelete gates storage deletion behind confirmation.
	ConfirmStorageDelete bool `koanf:"confirm_storage_delete"`

	// PairRatePerMinute and PairBurst bound pairing key generation.
	PairRatePerMinute int `koanf:"pair_rate_per_minute"`
	PairBurst         int `koanf:"pair_burst"`
}

// CORSConfig controls the cross-origin layer.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	MaxAge           int      `koanf:"max_age" validate:"min=0"`
	AllowCredentials bool     `koanf:"allow_credentials"`
}

// EventsConfig controls the uc/events long-poll.
type EventsConfig struct {
	// Timeout bounds a parked long-poll.
	Timeout time.Duration `koanf:"timeout"`
	// NotificationIDPath is the persistent counter file.
	NotificationIDPath string `koanf:"notification_id_path" validate:"required"`
}

// StorageConfig locates the on-disk credential store.
type StorageConfig struct {
	// CredentialsPath is the BadgerDB directory for paired clients.
	CredentialsPath string `koanf:"credentials_path" validate:"required"`
	// GCInterval is the store's value-log GC cadence.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the defaults applied before file and environment
// layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              48875,
			Name:              "UC Server",
			UUID:              "00000000-0000-0000-0000-000000000000",
			Options:           []string{"power", "time", "events", "outputs", "source-lists", "sources", "search", "acquisitions", "storage", "credentials", "categories", "apps", "remote", "feedback", "images"},
			Metrics:           true,
			RateLimitRequests: 0,
			RateLimitWindow:   time.Minute,
			ShutdownTimeout:   10 * time.Second,
		},
		Security: SecurityConfig{
			Enabled:           false,
			Iteration:         10,
			NcLimit:           10,
			NonceTimeout:      5 * time.Second,
			PairRatePerMinute: 6,
			PairBurst:         3,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "PUT", "POST", "DELETE"},
			MaxAge:       2700,
		},
		Events: EventsConfig{
			Timeout:            60 * time.Second,
			NotificationIDPath: "notification_id.dat",
		},
		Storage: StorageConfig{
			CredentialsPath: "/data/ucserver/credentials",
			GCInterval:      10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
