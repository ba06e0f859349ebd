// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the addon host configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete addon host configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Addons  AddonsConfig  `yaml:"addons"`
	Log     LogConfig     `yaml:"log"`
	CORS    CORSConfig    `yaml:"cors"`
	Auth    AuthConfig    `yaml:"auth"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the TCP address to listen on, or unix:///path for a Unix
	// socket.
	// Environment: ADDONHOST_ADDR
	// Default: 127.0.0.1:8000
	Addr string `yaml:"addr"`

	// TLSCert and TLSKey enable HTTPS on a TCP address when both are set.
	TLSCert string `yaml:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty"`

	// ReadHeaderTimeout bounds how long the server waits for request headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// during graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AddonsConfig configures module discovery.
type AddonsConfig struct {
	// Dir is the addon root scanned at startup.
	// Environment: ADDONHOST_ADDONS_DIR
	Dir string `yaml:"dir"`

	// ExcludeDirs are directory names pruned wherever they appear.
	ExcludeDirs []string `yaml:"exclude_dirs"`

	// ExcludePatterns are doublestar globs relative to Dir. A directory
	// matching a pattern is pruned; a file matching one is skipped.
	ExcludePatterns []string `yaml:"exclude_patterns,omitempty"`

	// Watch configures hot reload.
	Watch WatchConfig `yaml:"watch"`
}

// WatchConfig configures the addon directory watcher.
type WatchConfig struct {
	// Enabled turns on hot reload.
	// Environment: ADDONHOST_WATCH
	Enabled bool `yaml:"enabled"`

	// Debounce collapses bursts of events for the same file.
	Debounce time.Duration `yaml:"debounce"`
}

// LogConfig configures logging. Environment variables read by
// log.FromEnv take precedence over these values.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// CORSConfig configures cross-origin access to the whole surface.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// AuthConfig configures the login route and the default bearer_jwt secret.
type AuthConfig struct {
	// JWTSecret signs tokens issued by POST /auth/login. Empty disables login.
	// Environment: ADDONHOST_JWT_SECRET
	JWTSecret string `yaml:"jwt_secret,omitempty"`

	// Issuer is the iss claim of issued tokens.
	Issuer string `yaml:"issuer"`

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// Users maps login names to passwords accepted by POST /auth/login.
	// A value starting with $2 is treated as a bcrypt hash.
	Users map[string]string `yaml:"users,omitempty"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	// Enabled turns on span recording.
	// Environment: ADDONHOST_TRACING_ENABLED
	Enabled     bool             `yaml:"enabled"`
	ServiceName string           `yaml:"service_name"`
	SampleRatio float64          `yaml:"sample_ratio"`
	Exporters   []ExporterConfig `yaml:"exporters,omitempty"`
}

// ExporterConfig is one span export destination.
type ExporterConfig struct {
	// Type is "console", "otlp" (gRPC), or "otlp_http".
	Type     string            `yaml:"type"`
	Endpoint string            `yaml:"endpoint,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
	Insecure bool              `yaml:"insecure,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:8000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Addons: AddonsConfig{
			Dir:         "./addons",
			ExcludeDirs: []string{"tests", "config"},
			Watch: WatchConfig{
				Enabled:  false,
				Debounce: 500 * time.Millisecond,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			Enabled: true,
			AllowedOrigins: []string{
				"http://localhost",
				"http://localhost:8000",
				"http://localhost:8080",
			},
			AllowCredentials: true,
		},
		Auth: AuthConfig{
			Issuer:   "addonhost",
			TokenTTL: 24 * time.Hour,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "addonhost",
			SampleRatio: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from an optional YAML file and environment
// variables. Environment variables take precedence over file-based
// configuration. If configPath is empty, only defaults and the environment
// are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &hosterrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	// Apply defaults to any zero values (handles minimal configs)
	cfg.applyDefaults()

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &hosterrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = defaults.Server.ReadHeaderTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if c.Addons.Dir == "" {
		c.Addons.Dir = defaults.Addons.Dir
	}
	// nil means unset; an explicit empty list disables pruning
	if c.Addons.ExcludeDirs == nil {
		c.Addons.ExcludeDirs = defaults.Addons.ExcludeDirs
	}
	if c.Addons.Watch.Debounce == 0 {
		c.Addons.Watch.Debounce = defaults.Addons.Watch.Debounce
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = defaults.Auth.Issuer
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = defaults.Auth.TokenTTL
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaults.Tracing.ServiceName
	}
	if c.Tracing.SampleRatio == 0 {
		c.Tracing.SampleRatio = defaults.Tracing.SampleRatio
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	// Expand home directory if present
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("ADDONHOST_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("ADDONHOST_SHUTDOWN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Server.ShutdownTimeout = duration
		}
	}

	if val := os.Getenv("ADDONHOST_ADDONS_DIR"); val != "" {
		c.Addons.Dir = val
	}
	if val := os.Getenv("ADDONHOST_WATCH"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Addons.Watch.Enabled = enabled
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}

	if val := os.Getenv("ADDONHOST_JWT_SECRET"); val != "" {
		c.Auth.JWTSecret = val
	}

	if val := os.Getenv("ADDONHOST_TRACING_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, "server.tls_cert and server.tls_key must be set together")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}

	if c.Addons.Dir == "" {
		errs = append(errs, "addons.dir must not be empty")
	}
	for _, name := range c.Addons.ExcludeDirs {
		if name == "" || strings.ContainsAny(name, `/\`) {
			errs = append(errs, fmt.Sprintf("addons.exclude_dirs entries must be bare directory names, got %q", name))
		}
	}
	for _, pattern := range c.Addons.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Sprintf("addons.exclude_patterns: invalid glob %q", pattern))
		}
	}
	if c.Addons.Watch.Debounce < 0 {
		errs = append(errs, fmt.Sprintf("addons.watch.debounce must not be negative, got %v", c.Addons.Watch.Debounce))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Sprintf("auth.token_ttl must be positive, got %v", c.Auth.TokenTTL))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio))
	}
	validExporters := map[string]bool{"console": true, "otlp": true, "otlp_http": true}
	for i, exp := range c.Tracing.Exporters {
		if !validExporters[exp.Type] {
			errs = append(errs, fmt.Sprintf("tracing.exporters[%d].type must be one of [console, otlp, otlp_http], got %q", i, exp.Type))
		}
		if exp.Type != "console" && exp.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("tracing.exporters[%d].endpoint is required for %s", i, exp.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}
