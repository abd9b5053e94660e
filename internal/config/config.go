package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Build metadata, injected via -ldflags at release time.
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

// Config is the process configuration, read once at boot from a YAML file.
type Config struct {
	RedisAddr  string `yaml:"redis_address"`
	ServerAddr string `yaml:"server_address"`
	Port       string `yaml:"port"`

	// CallbackBaseURL is this platform's public base URL; provider webhook
	// callbacks are registered under it.
	CallbackBaseURL string `yaml:"callback_base_url"`

	// ProviderTimeoutSec bounds each outbound provider API call. 0 means the
	// client default.
	ProviderTimeoutSec int `yaml:"provider_timeout_sec"`
}

// ProviderTimeout returns the configured outbound call bound as a Duration.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

// Load reads and validates the YAML config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.RedisAddr == "" {
		return nil, errors.New("redis_address is required")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.CallbackBaseURL == "" {
		return nil, errors.New("callback_base_url is required")
	}
	return &cfg, nil
}
