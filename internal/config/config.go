// Package config handles configuration loading and management for specula.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAPIPrefix is the URL prefix for all API endpoints.
const DefaultAPIPrefix = "/specula"

// WebConfig represents the HTTP server configuration.
type WebConfig struct {
	// Host is the HTTP server host/IP address (default: 127.0.0.1).
	// The server refuses connections from other hosts at the socket level
	// unless Host is set to 0.0.0.0.
	Host string `yaml:"host"`
	// Port is the HTTP server port (default: 8080). 0 selects a random port.
	Port int `yaml:"port"`
	// APIPrefix is the URL prefix for API endpoints (default: /specula).
	APIPrefix string `yaml:"api_prefix"`
	// RateLimitRPS is the per-IP request rate limit (default: 10).
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// RateLimitBurst is the per-IP burst allowance (default: 20).
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// BusConfig represents event bus tuning.
type BusConfig struct {
	// BufferSize is the per-subscriber event buffer. A subscriber that
	// falls this many events behind is disconnected (default: 256).
	BufferSize int `yaml:"buffer_size"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info).
	Level string `yaml:"level"`
	// File is an optional log file path (rotated).
	File string `yaml:"file"`
	// JSON enables JSON log output.
	JSON bool `yaml:"json"`
}

// Config represents the complete specula configuration.
type Config struct {
	Web WebConfig `yaml:"web"`
	Bus BusConfig `yaml:"bus"`
	Log LogConfig `yaml:"log"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Web: WebConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			APIPrefix:      DefaultAPIPrefix,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Bus: BusConfig{BufferSize: 256},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML configuration file and fills in defaults for anything
// the file leaves unset. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Web.Host == "" {
		c.Web.Host = def.Web.Host
	}
	if c.Web.Port == 0 {
		c.Web.Port = def.Web.Port
	}
	if c.Web.APIPrefix == "" {
		c.Web.APIPrefix = def.Web.APIPrefix
	}
	if c.Web.RateLimitRPS <= 0 {
		c.Web.RateLimitRPS = def.Web.RateLimitRPS
	}
	if c.Web.RateLimitBurst <= 0 {
		c.Web.RateLimitBurst = def.Web.RateLimitBurst
	}
	if c.Bus.BufferSize <= 0 {
		c.Bus.BufferSize = def.Bus.BufferSize
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}
