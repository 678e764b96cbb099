package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gembridge/gembridge/pkg/rewrite"
	"github.com/gembridge/gembridge/pkg/upstream"
	"github.com/goccy/go-yaml"
)

const (
	defaultListen          = ":8080"
	defaultMaxAttempts     = 3
	defaultCooldownSeconds = 30
)

type Upstream struct {
	BaseURL      string            `json:"base_url" yaml:"base_url"`
	APIKeys      []string          `json:"api_keys" yaml:"api_keys"`
	HTTPProxy    string            `json:"http_proxy" yaml:"http_proxy"`
	ExtraHeaders map[string]string `json:"extra_headers" yaml:"extra_headers"`
}

type Auth struct {
	// Bearer tokens accepted on the gateway surface. Empty means the
	// gateway is open.
	APIKeys []string `json:"api_keys" yaml:"api_keys"`
}

type Retry struct {
	MaxAttempts        int `json:"max_attempts" yaml:"max_attempts"`
	KeyCooldownSeconds int `json:"key_cooldown_seconds" yaml:"key_cooldown_seconds"`
}

type Config struct {
	Listen   string   `json:"listen" yaml:"listen"`
	LogLevel string   `json:"log_level" yaml:"log_level"`
	Upstream Upstream `json:"upstream" yaml:"upstream"`
	Auth     Auth     `json:"auth" yaml:"auth"`
	Retry    Retry    `json:"retry" yaml:"retry"`

	RequestRewrites *rewrite.Policy `json:"request_rewrites" yaml:"request_rewrites"`
}

func Read(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = upstream.DefaultBaseURL
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultMaxAttempts
	}
	if c.Retry.KeyCooldownSeconds <= 0 {
		c.Retry.KeyCooldownSeconds = defaultCooldownSeconds
	}
}

func (c *Config) Validate() error {
	if len(c.Upstream.APIKeys) == 0 {
		return fmt.Errorf("upstream.api_keys must have at least one credential")
	}
	for i, k := range c.Upstream.APIKeys {
		if k == "" {
			return fmt.Errorf("upstream.api_keys[%d] is empty", i)
		}
	}
	return nil
}

func (c *Config) KeyCooldown() time.Duration {
	return time.Duration(c.Retry.KeyCooldownSeconds) * time.Second
}
